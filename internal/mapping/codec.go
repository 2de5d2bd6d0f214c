package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DeleteValue is written for an optional text field that is set to the empty
// string, telling the service to clear the stored value. An empty cell means
// "no value supplied".
const DeleteValue = "delete_value"

const (
	// DateLayout is the canonical civil date format.
	DateLayout = "01/02/2006"
	// TimestampLayout is the canonical UTC timestamp format, millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

// Years outside this range render in a form the layouts cannot parse.
const (
	MinYear = 0
	MaxYear = 9999
)

// FormatInt64 renders n in base 10.
func FormatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ParseInt64 parses a base-10 integer.
func ParseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// FormatFloat renders f in the shortest form that parses back to f. NaN and
// infinities are outside the domain of bulk numeric columns.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseFloat parses a finite decimal number.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}

// FormatBool renders b as "true" or "false".
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

// ParseBool accepts "true" and "false" in any letter case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// CheckYear reports an error if year cannot round trip through the date and
// timestamp layouts.
func CheckYear(year int) error {
	if year < MinYear || year > MaxYear {
		return fmt.Errorf("year %d outside %d-%d", year, MinYear, MaxYear)
	}
	return nil
}

// FormatDate renders the civil date of t. Only years accepted by CheckYear
// parse back.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a civil date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

// FormatOptionalText renders an optional string: nil is an empty cell and the
// empty string is DeleteValue.
func FormatOptionalText(s *string) string {
	switch {
	case s == nil:
		return ""
	case *s == "":
		return DeleteValue
	}
	return *s
}

// ParseOptionalText is the inverse of FormatOptionalText.
func ParseOptionalText(s string) *string {
	switch s {
	case "":
		return nil
	case DeleteValue:
		empty := ""
		return &empty
	}
	return &s
}

// Text maps a plain string field; the empty string is an empty cell.
func Text[T any](column string, field func(T) *string) Field[T] {
	return Field[T]{
		Column: column,
		Write: func(e T) (string, bool) {
			return *field(e), true
		},
		Read: func(v string, e T) error {
			*field(e) = v
			return nil
		},
	}
}

// OptionalText maps a *string field with delete_value semantics.
func OptionalText[T any](column string, field func(T) **string) Field[T] {
	return Field[T]{
		Column: column,
		Write: func(e T) (string, bool) {
			return FormatOptionalText(*field(e)), true
		},
		Read: func(v string, e T) error {
			*field(e) = ParseOptionalText(v)
			return nil
		},
	}
}

// Int64 maps a required integer field. An empty cell is a format error.
func Int64[T any](column string, field func(T) *int64) Field[T] {
	return Field[T]{
		Column: column,
		Write: func(e T) (string, bool) {
			return FormatInt64(*field(e)), true
		},
		Read: func(v string, e T) error {
			n, err := ParseInt64(v)
			if err != nil {
				return err
			}
			*field(e) = n
			return nil
		},
	}
}

// OptionalInt64 maps a *int64 field; nil is an empty cell.
func OptionalInt64[T any](column string, field func(T) **int64) Field[T] {
	return optional(column, field, FormatInt64, ParseInt64)
}

// OptionalFloat maps a *float64 field; nil is an empty cell.
func OptionalFloat[T any](column string, field func(T) **float64) Field[T] {
	return optional(column, field, FormatFloat, ParseFloat)
}

// OptionalBool maps a *bool field; nil is an empty cell.
func OptionalBool[T any](column string, field func(T) **bool) Field[T] {
	return optional(column, field, FormatBool, ParseBool)
}

// OptionalDate maps a *time.Time civil date; nil is an empty cell. Writing a
// year outside MinYear-MaxYear is a format error.
func OptionalDate[T any](column string, field func(T) **time.Time) Field[T] {
	f := optional(column, field, FormatDate, ParseDate)
	f.Check = func(e T) error {
		if t := *field(e); t != nil {
			return CheckYear(t.Year())
		}
		return nil
	}
	return f
}

// OptionalTimestamp maps a *time.Time timestamp; nil is an empty cell. The
// UTC year must be within MinYear-MaxYear.
func OptionalTimestamp[T any](column string, field func(T) **time.Time) Field[T] {
	f := optional(column, field, FormatTimestamp, ParseTimestamp)
	f.Check = func(e T) error {
		if t := *field(e); t != nil {
			return CheckYear(t.UTC().Year())
		}
		return nil
	}
	return f
}

func optional[T, V any](column string, field func(T) **V, format func(V) string, parse func(string) (V, error)) Field[T] {
	return Field[T]{
		Column: column,
		Write: func(e T) (string, bool) {
			p := *field(e)
			if p == nil {
				return "", true
			}
			return format(*p), true
		},
		Read: func(v string, e T) error {
			if v == "" {
				*field(e) = nil
				return nil
			}
			parsed, err := parse(v)
			if err != nil {
				return err
			}
			*field(e) = &parsed
			return nil
		},
	}
}
