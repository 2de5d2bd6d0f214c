package testutil

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/infobloxopen/cq-source-bulk/internal/snapshot"
)

// ParquetColumn returns the values of a string column of a snapshot file,
// with "" for nulls.
func ParquetColumn(ctx context.Context, path, column string) ([]string, error) {
	var values []string
	err := snapshot.Read(ctx, path, 500, func(rec arrow.RecordBatch) error {
		vs, err := RecordStrings(rec, column)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		values = append(values, vs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// RecordStrings returns the values of a string column of a record batch, with
// "" for nulls.
func RecordStrings(rec arrow.RecordBatch, column string) ([]string, error) {
	idx := rec.Schema().FieldIndices(column)
	if len(idx) == 0 {
		return nil, fmt.Errorf("column %q not in record", column)
	}
	col, ok := rec.Column(idx[0]).(*array.String)
	if !ok {
		return nil, fmt.Errorf("column %q is %s, not a string", column, rec.Column(idx[0]).DataType())
	}
	out := make([]string, col.Len())
	for i := range out {
		if !col.IsNull(i) {
			out[i] = col.Value(i)
		}
	}
	return out, nil
}
