// Package record holds the physical row model shared by the bulk file reader,
// writer and mapping engine.
package record

import "fmt"

// Record is one physical bulk file row: an ordered mapping from column name to
// value. A column that is present with an empty value is distinct from a column
// that is absent.
//
// Records are built by the reader (one per row) or by the mapping engine (one
// per written entity). Once handed to a consumer they must not be mutated.
type Record struct {
	names  []string
	values map[string]string
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]string)}
}

// FromRow builds a record from a header and a row of the same length. Every
// header column is present in the result.
func FromRow(header, row []string) (*Record, error) {
	if len(header) != len(row) {
		return nil, fmt.Errorf("row has %d fields, header has %d", len(row), len(header))
	}
	r := &Record{
		names:  make([]string, 0, len(header)),
		values: make(map[string]string, len(header)),
	}
	for i, name := range header {
		if _, dup := r.values[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		r.names = append(r.names, name)
		r.values[name] = row[i]
	}
	return r, nil
}

// Get returns the value of column name and whether the column is present.
func (r *Record) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether column name is present.
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Set assigns value to column name. A new column is appended after the
// existing ones; setting an existing column keeps its position.
func (r *Record) Set(name, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = value
}

// Names returns a copy of the column names in insertion order.
func (r *Record) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len reports the number of present columns.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Row projects the record onto header. Absent columns become empty strings.
func (r *Record) Row(header []string) []string {
	row := make([]string, len(header))
	for i, name := range header {
		row[i], _ = r.Get(name)
	}
	return row
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := &Record{
		names:  r.Names(),
		values: make(map[string]string, len(r.values)),
	}
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}
