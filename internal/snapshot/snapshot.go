// Package snapshot writes synced entity tables to local Parquet files, one
// file per table, and reads them back.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/infobloxopen/cq-source-bulk/internal/fsutil"
)

type tableWriter struct {
	w      *pqarrow.FileWriter
	schema *arrow.Schema
	rows   int64
}

// Store appends record batches to <dir>/<table>.parquet. It is safe for
// concurrent use.
type Store struct {
	dir string
	fs  fsutil.FileSystem

	mu      sync.Mutex
	writers map[string]*tableWriter
	closed  bool
}

// New returns a Store writing under dir.
func New(dir string, fs fsutil.FileSystem) *Store {
	if fs == nil {
		fs = fsutil.OS{}
	}
	return &Store{dir: dir, fs: fs, writers: map[string]*tableWriter{}}
}

// Path returns the file of a table.
func (s *Store) Path(table string) string {
	return filepath.Join(s.dir, table+".parquet")
}

// Write appends rec to the table's file. Every batch of a table must share
// the schema of the first.
func (s *Store) Write(table string, rec arrow.RecordBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("snapshot store is closed")
	}
	tw, ok := s.writers[table]
	if !ok {
		var err error
		if tw, err = s.open(table, rec.Schema()); err != nil {
			return err
		}
		s.writers[table] = tw
	}
	if !tw.schema.Equal(rec.Schema()) {
		return fmt.Errorf("schema mismatch in snapshot of %s: have %v, got %v", table, tw.schema.Fields(), rec.Schema().Fields())
	}
	if err := tw.w.Write(rec); err != nil {
		return fmt.Errorf("failed to write snapshot of %s: %w", table, err)
	}
	tw.rows += rec.NumRows()
	return nil
}

func (s *Store) open(table string, sc *arrow.Schema) (*tableWriter, error) {
	if err := s.fs.MkdirAll(s.dir); err != nil {
		return nil, err
	}
	path := s.Path(table)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(sc, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		_ = f.Close()
		_ = s.fs.Remove(path)
		return nil, fmt.Errorf("failed to create parquet writer for %s: %w", table, err)
	}
	return &tableWriter{w: w, schema: sc}, nil
}

// Rows returns the rows written per table so far.
func (s *Store) Rows() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.writers))
	for name, tw := range s.writers {
		out[name] = tw.rows
	}
	return out
}

// Close finishes every file. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	names := make([]string, 0, len(s.writers))
	for name := range s.writers {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		// Closing the parquet writer closes the file.
		if err := s.writers[name].w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close snapshot of %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Read streams the record batches of a snapshot file to fn. Batches are
// released after fn returns.
func Read(ctx context.Context, path string, batchSize int, fn func(arrow.RecordBatch) error) error {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	defer func() { _ = pf.Close() }()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{
		BatchSize: int64(batchSize),
	}, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("failed to create arrow reader for %s: %w", path, err)
	}

	rr, err := reader.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to get record reader for %s: %w", path, err)
	}
	defer rr.Release()

	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rr.RecordBatch()); err != nil {
			return err
		}
	}
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading records from %s: %w", path, err)
	}
	return nil
}
