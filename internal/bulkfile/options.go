// Package bulkfile streams bulk entities from and to delimited bulk files.
//
// A bulk file starts with a header row naming the columns, optionally followed
// by a Format Version row, then one row per record. Rows of container record
// types that share a Parent Id and are adjacent form one entity.
package bulkfile

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/infobloxopen/cq-source-bulk/internal/fsutil"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// FileType is the delimited text flavour of a bulk file.
type FileType string

const (
	CSV FileType = "Csv"
	TSV FileType = "Tsv"
)

// ParseFileType accepts "csv" or "tsv" in any letter case.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(s) {
	case "csv":
		return CSV, nil
	case "tsv":
		return TSV, nil
	}
	return "", fmt.Errorf("unsupported file type %q; supported: csv, tsv", s)
}

// Delimiter returns the field separator of f.
func (f FileType) Delimiter() rune {
	if f == TSV {
		return '\t'
	}
	return ','
}

// Extension returns the file name extension of f, with the leading dot.
func (f FileType) Extension() string {
	if f == TSV {
		return ".tsv"
	}
	return ".csv"
}

type options struct {
	delimiter       rune
	version         mapping.Version
	excludeReadonly bool
	deleteOnClose   bool
	fs              fsutil.FileSystem
	logger          zerolog.Logger
}

func defaultOptions() options {
	return options{
		delimiter: ',',
		version:   mapping.CurrentVersion,
		fs:        fsutil.OS{},
		logger:    zerolog.Nop(),
	}
}

// Option configures a Reader or a Writer.
type Option func(*options)

// WithFileType sets the delimiter from a file type.
func WithFileType(f FileType) Option {
	return func(o *options) { o.delimiter = f.Delimiter() }
}

// WithDelimiter sets the field delimiter. Zero keeps the default comma.
func WithDelimiter(r rune) Option {
	return func(o *options) {
		if r != 0 {
			o.delimiter = r
		}
	}
}

// WithVersion sets the format version written by a Writer, and assumed by a
// Reader until the file declares its own.
func WithVersion(v mapping.Version) Option {
	return func(o *options) {
		if !v.IsZero() {
			o.version = v
		}
	}
}

// WithExcludeReadonly makes a Writer omit read-only fields.
func WithExcludeReadonly(exclude bool) Option {
	return func(o *options) { o.excludeReadonly = exclude }
}

// WithDeleteOnClose makes a Reader opened with Open remove its file on Close.
func WithDeleteOnClose(del bool) Option {
	return func(o *options) { o.deleteOnClose = del }
}

// WithFileSystem sets the file system used to remove files on Close.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
