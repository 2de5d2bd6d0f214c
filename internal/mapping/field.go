package mapping

// Field maps one entity attribute onto one column.
type Field[T any] struct {
	// Column is the static column name. Ignored when ColumnFunc is set.
	Column string
	// ColumnFunc computes the column name from the entity instance. It must be
	// pure: it is evaluated afresh for every instance, on read and on write.
	ColumnFunc func(T) string
	// Required makes an absent column a MappingError on read.
	Required bool
	// ReadOnly fields are assigned by the service and are omitted on write
	// when read-only data is excluded.
	ReadOnly bool
	// Since is the first format version carrying the column.
	Since Version

	// Write renders the value. ok == false omits the column from the record.
	Write func(e T) (value string, ok bool)
	// Read parses value into e.
	Read func(value string, e T) error
	// Check, if set, rejects values Write can render but Read cannot parse back.
	Check func(e T) error
}

// ColumnFor resolves the column name for e.
func (f Field[T]) ColumnFor(e T) string {
	if f.ColumnFunc != nil {
		return f.ColumnFunc(e)
	}
	return f.Column
}

// Dynamic reports whether the column name depends on the entity instance.
func (f Field[T]) Dynamic() bool {
	return f.ColumnFunc != nil
}

// Req returns a copy of f that must be present on read.
func (f Field[T]) Req() Field[T] {
	f.Required = true
	return f
}

// RO returns a copy of f marked read-only.
func (f Field[T]) RO() Field[T] {
	f.ReadOnly = true
	return f
}

// From returns a copy of f that only applies from format version v onwards.
func (f Field[T]) From(v Version) Field[T] {
	f.Since = v
	return f
}

// Named returns a copy of f whose column name is computed per instance.
func (f Field[T]) Named(fn func(T) string) Field[T] {
	f.ColumnFunc = fn
	return f
}

func (f Field[T]) appliesTo(v Version) bool {
	return !v.Less(f.Since)
}

// Table is the ordered list of fields of one type level. Order determines the
// column order on write; it is irrelevant on read.
type Table[T any] []Field[T]

// Embed lifts a table written against an inner level (typically an embedded
// struct) onto the outer type, using inner to reach the embedded value.
func Embed[O, I any](t Table[I], inner func(O) I) Table[O] {
	out := make(Table[O], len(t))
	for i, f := range t {
		lifted := Field[O]{
			Column:   f.Column,
			Required: f.Required,
			ReadOnly: f.ReadOnly,
			Since:    f.Since,
			Write: func(e O) (string, bool) {
				return f.Write(inner(e))
			},
			Read: func(value string, e O) error {
				return f.Read(value, inner(e))
			},
		}
		if f.Check != nil {
			lifted.Check = func(e O) error { return f.Check(inner(e)) }
		}
		if f.ColumnFunc != nil {
			lifted.ColumnFunc = func(e O) string { return f.ColumnFunc(inner(e)) }
		}
		out[i] = lifted
	}
	return out
}
