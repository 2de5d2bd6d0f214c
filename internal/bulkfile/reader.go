package bulkfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/record"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrClosed is returned when reading from or writing to a closed bulk file.
var ErrClosed = errors.New("bulk file is closed")

type row struct {
	rec  *record.Record
	desc *entity.Descriptor
	n    int

	// version is set, and desc nil, for a Format Version row.
	version *mapping.Version
}

// Reader yields entities from a bulk file in file order.
//
// Rows of unrecognized record types are skipped. Any other malformed row is
// fatal: the error is returned once and then by every later call.
type Reader struct {
	csv    *csv.Reader
	closer io.Closer
	path   string
	opts   options

	header  []string
	version mapping.Version
	rows    int
	skipped int
	eof     bool
	closed  bool
	err     error

	lookahead *row

	peeked    entity.Entity
	hasPeeked bool

	current entity.Entity
}

// Open opens the bulk file at path for reading.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bulk file %s: %w", path, err)
	}
	r, err := NewReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	r.path = path
	return r, nil
}

// NewReader reads the header of a bulk file from src. Closing the returned
// Reader does not close src.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReader(src)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = o.delimiter
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &RowError{Row: 1, Err: fmt.Errorf("missing header row")}
	}
	if err != nil {
		return nil, &RowError{Row: 1, Err: fmt.Errorf("failed to read header: %w", err)}
	}
	if err := validateHeader(header); err != nil {
		return nil, &RowError{Row: 1, Err: err}
	}
	cr.FieldsPerRecord = len(header)

	return &Reader{
		csv:     cr,
		opts:    o,
		header:  header,
		version: o.version,
		rows:    1,
	}, nil
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	hasType := false
	for i, h := range header {
		if h == "" {
			return fmt.Errorf("empty column name at position %d", i+1)
		}
		if seen[h] {
			return fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = true
		if h == entity.ColumnType {
			hasType = true
		}
	}
	if !hasType {
		return fmt.Errorf("header has no %q column", entity.ColumnType)
	}
	return nil
}

// Header returns a copy of the file's column names.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Version returns the format version in effect: the one declared by the file's
// Format Version row once read, the configured default before that.
func (r *Reader) Version() mapping.Version { return r.version }

// Skipped returns how many rows of unrecognized record types were skipped.
func (r *Reader) Skipped() int { return r.skipped }

// Read returns the next entity, or io.EOF when the file is exhausted.
func (r *Reader) Read() (entity.Entity, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.hasPeeked {
		e := r.peeked
		r.peeked, r.hasPeeked = nil, false
		return e, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	e, err := r.readEntity()
	if err != nil && err != io.EOF {
		r.err = err
	}
	return e, err
}

// TryRead returns the next entity if match accepts it. A rejected entity stays
// buffered and is returned by the next Read, Next or TryRead. At the end of
// the file TryRead returns false and no error.
func (r *Reader) TryRead(match func(entity.Entity) bool) (entity.Entity, bool, error) {
	if !r.hasPeeked {
		e, err := r.Read()
		if err == io.EOF {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		r.peeked, r.hasPeeked = e, true
	}
	if !match(r.peeked) {
		return nil, false, nil
	}
	e := r.peeked
	r.peeked, r.hasPeeked = nil, false
	return e, true, nil
}

// TryReadAs is TryRead for entities of concrete type T.
func TryReadAs[T entity.Entity](r *Reader, match func(T) bool) (T, bool, error) {
	var zero T
	e, ok, err := r.TryRead(func(e entity.Entity) bool {
		t, ok := e.(T)
		return ok && (match == nil || match(t))
	})
	if err != nil || !ok {
		return zero, false, err
	}
	return e.(T), true, nil
}

// Next advances to the next entity. It returns false at the end of the file or
// on error; Err tells them apart.
func (r *Reader) Next() bool {
	e, err := r.Read()
	if err != nil {
		r.current = nil
		return false
	}
	r.current = e
	return true
}

// Entity returns the entity read by the last successful Next.
func (r *Reader) Entity() entity.Entity { return r.current }

// Err returns the first fatal error met by the Reader.
func (r *Reader) Err() error { return r.err }

// Close releases the file. A Reader created by Open with WithDeleteOnClose
// also removes its file. Close is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.peeked, r.hasPeeked, r.lookahead, r.current = nil, false, nil, nil

	var errs []error
	if r.closer != nil {
		if err := r.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close bulk file: %w", err))
		}
	}
	if r.opts.deleteOnClose && r.path != "" {
		if err := r.opts.fs.Remove(r.path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove bulk file %s: %w", r.path, err))
		}
	}
	return errors.Join(errs...)
}

// readEntity groups consecutive rows of a container type that share a Parent
// Id. The first row that does not belong is kept as the look-ahead.
func (r *Reader) readEntity() (entity.Entity, error) {
	first, err := r.take()
	if err != nil {
		return nil, err
	}
	group := []*record.Record{first.rec}
	if first.desc.Multi {
		key := entity.ParentKey(first.rec)
		for {
			next, err := r.readRow()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, err
			}
			if next.version != nil || next.desc != first.desc || entity.ParentKey(next.rec) != key {
				r.lookahead = next
				break
			}
			group = append(group, next.rec)
		}
	}
	e, err := first.desc.Read(group, r.version)
	if err != nil {
		return nil, &RowError{Row: first.n, Type: first.desc.Type, Err: err}
	}
	return e, nil
}

// take returns the row starting the next entity, applying any Format Version
// rows met before it.
func (r *Reader) take() (*row, error) {
	for {
		next := r.lookahead
		r.lookahead = nil
		if next == nil {
			var err error
			if next, err = r.readRow(); err != nil {
				return nil, err
			}
		}
		if next.version == nil {
			return next, nil
		}
		r.version = *next.version
	}
}

// readRow returns the next Format Version row or row of a known record type,
// skipping unrecognized ones on the way. A Format Version row ends the group
// being read, so rows before it are decoded with the previous version.
func (r *Reader) readRow() (*row, error) {
	for {
		if r.eof {
			return nil, io.EOF
		}
		fields, err := r.csv.Read()
		if err == io.EOF {
			r.eof = true
			return nil, io.EOF
		}
		r.rows++
		if err != nil {
			return nil, &RowError{Row: r.rows, Err: err}
		}
		rec, err := record.FromRow(r.header, fields)
		if err != nil {
			return nil, &RowError{Row: r.rows, Err: err}
		}
		typ, _ := rec.Get(entity.ColumnType)
		if typ == entity.FormatVersionType {
			name, _ := rec.Get(entity.ColumnName)
			v, err := mapping.ParseVersion(name)
			if err != nil {
				return nil, &RowError{Row: r.rows, Type: typ, Err: &mapping.FormatError{Column: entity.ColumnName, Value: name, Err: err}}
			}
			return &row{rec: rec, n: r.rows, version: &v}, nil
		}
		d, ok := entity.Lookup(typ)
		if !ok {
			r.skipped++
			r.opts.logger.Warn().Str("type", typ).Int("row", r.rows).Msg("skipping row with unrecognized record type")
			continue
		}
		return &row{rec: rec, desc: d, n: r.rows}, nil
	}
}
