package mapping

import (
	"errors"
	"fmt"

	"github.com/infobloxopen/cq-source-bulk/internal/record"
)

// WriteOptions controls Schema.Write.
type WriteOptions struct {
	// ExcludeReadonly omits read-only fields, as required for uploads.
	ExcludeReadonly bool
	// Version selects the table variant. Zero means CurrentVersion.
	Version Version
}

// Schema is the composed chain of level tables of one entity type, ordered
// base to concrete.
type Schema[T any] struct {
	name   string
	levels []Table[T]
}

// NewSchema composes levels into a schema. It panics when two levels claim the
// same static column, since reads rely on levels touching disjoint columns.
func NewSchema[T any](name string, levels ...Table[T]) *Schema[T] {
	seen := make(map[string]int)
	for li, level := range levels {
		for _, f := range level {
			if f.Write == nil || f.Read == nil {
				panic(fmt.Sprintf("mapping: schema %s: field %q lacks read or write function", name, f.Column))
			}
			if f.Dynamic() {
				continue
			}
			if prev, ok := seen[f.Column]; ok {
				panic(fmt.Sprintf("mapping: schema %s: column %q claimed by levels %d and %d", name, f.Column, prev, li))
			}
			seen[f.Column] = li
		}
	}
	return &Schema[T]{name: name, levels: levels}
}

// Name returns the schema name, usually the record type.
func (s *Schema[T]) Name() string {
	return s.name
}

// Columns returns the static column names applicable to v, base level first.
func (s *Schema[T]) Columns(v Version) []string {
	var cols []string
	for _, level := range s.levels {
		for _, f := range level {
			if f.Dynamic() || !f.appliesTo(v) {
				continue
			}
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// Write applies every level's serializers to rec, base level first.
func (s *Schema[T]) Write(e T, rec *record.Record, opts WriteOptions) error {
	v := opts.Version
	if v.IsZero() {
		v = CurrentVersion
	}
	for _, level := range s.levels {
		for _, f := range level {
			if !f.appliesTo(v) {
				continue
			}
			if f.ReadOnly && opts.ExcludeReadonly {
				continue
			}
			value, ok := f.Write(e)
			if !ok {
				continue
			}
			col := f.ColumnFor(e)
			if col == "" {
				return &MappingError{Type: s.name, Err: errors.New("dynamic column name resolved to empty")}
			}
			if f.Check != nil {
				if err := f.Check(e); err != nil {
					return &FormatError{Column: col, Value: value, Err: err}
				}
			}
			rec.Set(col, value)
		}
	}
	return nil
}

// Read applies every level's deserializers from rec into e.
func (s *Schema[T]) Read(rec *record.Record, e T, v Version) error {
	if v.IsZero() {
		v = CurrentVersion
	}
	for _, level := range s.levels {
		for _, f := range level {
			if !f.appliesTo(v) {
				continue
			}
			col := f.ColumnFor(e)
			raw, ok := rec.Get(col)
			if !ok {
				if f.Required {
					return &MappingError{Type: s.name, Column: col, Err: errMissing}
				}
				continue
			}
			if err := f.Read(raw, e); err != nil {
				return &FormatError{Column: col, Value: raw, Err: err}
			}
		}
	}
	return nil
}
