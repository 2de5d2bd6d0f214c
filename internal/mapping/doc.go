// Package mapping is the declarative, bidirectional mapping layer between typed
// bulk entities and physical records.
//
// A Field binds one column (static or computed from the entity instance) to a
// pair of functions: Write renders the entity's value and Read parses a column
// value back into the entity. Fields are grouped into ordered Tables, one per
// level of an entity's type chain, and a Schema composes the levels base-first.
//
//	common → identity → concrete
//
// Writing applies every level in order against the same record; reading applies
// every level too, and is order independent because levels never share a column.
// NewSchema enforces that rule at construction time.
package mapping
