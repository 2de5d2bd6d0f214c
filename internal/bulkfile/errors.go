package bulkfile

import "fmt"

// RowError annotates a fatal read or write error with the ordinal of the
// offending row (the header is row 1) and its record type when known.
type RowError struct {
	Row  int
	Type string
	Err  error
}

func (e *RowError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("row %d (%s): %v", e.Row, e.Type, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
