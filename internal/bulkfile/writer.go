package bulkfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// Writer renders entities as bulk file rows. The header and the Format Version
// row are written before the first entity, or on Close for an empty file.
type Writer struct {
	csv    *csv.Writer
	closer io.Closer
	opts   options
	header []string
	index  map[string]bool

	started bool
	closed  bool
	rows    int
}

// Create creates or truncates the file at path and returns a Writer for it.
func Create(path string, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk file %s: %w", path, err)
	}
	w := NewWriter(f, opts...)
	w.closer = f
	return w, nil
}

// NewWriter returns a Writer to dst. Closing the Writer does not close dst.
func NewWriter(dst io.Writer, opts ...Option) *Writer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cw := csv.NewWriter(dst)
	cw.Comma = o.delimiter

	header := entity.Header(o.version)
	index := make(map[string]bool, len(header))
	for _, h := range header {
		index[h] = true
	}
	return &Writer{csv: cw, opts: o, header: header, index: index}
}

// Header returns a copy of the columns the Writer emits.
func (w *Writer) Header() []string {
	return append([]string(nil), w.header...)
}

// Rows returns the number of entity rows written so far, not counting the
// header and Format Version rows.
func (w *Writer) Rows() int { return w.rows }

// WriteEntity writes the rows of e. Nothing is written if any row fails to map.
func (w *Writer) WriteEntity(e entity.Entity) error {
	if w.closed {
		return ErrClosed
	}
	d, err := entity.DescriptorFor(e)
	if err != nil {
		return err
	}
	recs, err := d.Write(e, mapping.WriteOptions{ExcludeReadonly: w.opts.excludeReadonly, Version: w.opts.version})
	if err != nil {
		return err
	}
	for _, rec := range recs {
		for _, name := range rec.Names() {
			if !w.index[name] {
				return &mapping.MappingError{Type: d.Type, Column: name, Err: fmt.Errorf("column not in bulk file header")}
			}
		}
	}
	if err := w.start(); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := w.csv.Write(rec.Row(w.header)); err != nil {
			return fmt.Errorf("failed to write %s row: %w", d.Type, err)
		}
		w.rows++
	}
	return nil
}

// WriteEntities writes every entity in order, stopping at the first error.
func (w *Writer) WriteEntities(es []entity.Entity) error {
	for i, e := range es {
		if err := w.WriteEntity(e); err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
	}
	return nil
}

func (w *Writer) start() error {
	if w.started {
		return nil
	}
	w.started = true
	if err := w.csv.Write(w.header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	version := make([]string, len(w.header))
	for i, h := range w.header {
		switch h {
		case entity.ColumnType:
			version[i] = entity.FormatVersionType
		case entity.ColumnName:
			version[i] = w.opts.version.String()
		}
	}
	if err := w.csv.Write(version); err != nil {
		return fmt.Errorf("failed to write format version: %w", err)
	}
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}

// Close writes the header if nothing was written yet, flushes and releases the
// file. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	var errs []error
	if err := w.start(); err != nil {
		errs = append(errs, err)
	}
	if err := w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush bulk file: %w", err))
	}
	w.closed = true
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close bulk file: %w", err))
		}
	}
	return errors.Join(errs...)
}
