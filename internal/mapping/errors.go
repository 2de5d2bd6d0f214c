package mapping

import "fmt"

// MappingError reports that a record cannot be mapped to or from an entity at
// all: a required column is missing, or an entity is structurally invalid for
// its record type.
type MappingError struct {
	Type   string // record type, when known
	Column string
	Err    error
}

func (e *MappingError) Error() string {
	msg := "mapping error"
	if e.Type != "" {
		msg += " for " + e.Type
	}
	if e.Column != "" {
		msg += fmt.Sprintf(": column %q", e.Column)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error { return e.Err }

// FormatError reports a column value that is present but cannot be parsed.
type FormatError struct {
	Column string
	Value  string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid value %q for column %q: %v", e.Value, e.Column, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// errMissing is the cause attached to a MappingError for an absent required column.
var errMissing = fmt.Errorf("required column is missing")
