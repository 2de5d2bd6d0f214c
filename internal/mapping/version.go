package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a bulk file format version as declared by the "Format Version"
// row, e.g. "6.0".
type Version struct {
	Major int
	Minor int
}

var (
	// V5 is the legacy format version.
	V5 = Version{Major: 5}
	// V6 is the current format version.
	V6 = Version{Major: 6}
	// CurrentVersion is written by default and assumed when a file carries no
	// Format Version row.
	CurrentVersion = V6
)

// ParseVersion parses "<major>.<minor>". A bare major version is accepted.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	major, minor, hasMinor := strings.Cut(s, ".")
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(major); err != nil || v.Major < 0 {
		return Version{}, fmt.Errorf("invalid format version %q", s)
	}
	if hasMinor {
		if v.Minor, err = strconv.Atoi(minor); err != nil || v.Minor < 0 {
			return Version{}, fmt.Errorf("invalid format version %q", s)
		}
	}
	return v, nil
}

// String renders the version as "<major>.<minor>".
func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Less reports whether v is older than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// IsZero reports whether v is unset.
func (v Version) IsZero() bool {
	return v == Version{}
}
