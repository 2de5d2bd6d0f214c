// Package naming derives table and column names from bulk record types and
// bulk column headers.
package naming

import (
	"regexp"
	"strings"
)

var invalidChars = regexp.MustCompile(`[^a-z0-9_]`)
var multiUnderscores = regexp.MustCompile(`_+`)

// Normalize converts a bulk name such as "Ad Group Age Target" or "Parent Id"
// into snake case: lower case, runs of spaces, hyphens, dots and other invalid
// characters replaced by a single "_", with leading and trailing underscores
// trimmed.
func Normalize(name string) string {
	raw := strings.ToLower(name)
	raw = invalidChars.ReplaceAllString(raw, "_")
	raw = multiUnderscores.ReplaceAllString(raw, "_")
	return strings.Trim(raw, "_")
}

// Table returns the table name of a record type, with an optional prefix.
func Table(prefix, recordType string) string {
	name := Normalize(recordType)
	if p := Normalize(prefix); p != "" {
		return p + "_" + name
	}
	return name
}

// Column returns the column name of a bulk column header.
func Column(header string) string {
	return Normalize(header)
}
