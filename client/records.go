package client

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/google/uuid"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// recordBuilder accumulates the rows of one table into Arrow record batches.
// A container entity contributes one row per bulk record.
type recordBuilder struct {
	table   *EntityTable
	schema  *arrow.Schema
	builder *array.RecordBuilder
	version mapping.Version
	rows    int
}

func newRecordBuilder(t *EntityTable, v mapping.Version) *recordBuilder {
	sc := t.Table.ToArrowSchema()
	return &recordBuilder{
		table:   t,
		schema:  sc,
		builder: array.NewRecordBuilder(memory.DefaultAllocator, sc),
		version: v,
	}
}

// Append adds the rows of e.
func (b *recordBuilder) Append(accountID, requestID string, e entity.Entity) error {
	recs, err := b.table.Descriptor.Write(e, mapping.WriteOptions{Version: b.version})
	if err != nil {
		return fmt.Errorf("failed to map %s entity: %w", b.table.RecordType, err)
	}
	for _, rec := range recs {
		for i, f := range b.schema.Fields() {
			fb := b.builder.Field(i)
			var value string
			switch f.Name {
			case schema.CqIDColumn.Name:
				value = uuid.NewString()
			case schema.CqParentIDColumn.Name:
			case ColumnAccountID:
				value = accountID
			case ColumnRequestID:
				value = requestID
			default:
				value, _ = rec.Get(b.table.Sources[f.Name])
			}
			if value == "" {
				fb.AppendNull()
				continue
			}
			if sb, ok := fb.(*array.StringBuilder); ok {
				sb.Append(value)
				continue
			}
			if err := fb.AppendValueFromString(value); err != nil {
				return fmt.Errorf("failed to append %s to column %s: %w", value, f.Name, err)
			}
		}
		b.rows++
	}
	return nil
}

// Len returns the number of rows buffered.
func (b *recordBuilder) Len() int { return b.rows }

// NewRecord returns the buffered rows as a record batch and resets the builder.
func (b *recordBuilder) NewRecord() arrow.RecordBatch {
	b.rows = 0
	return b.builder.NewRecordBatch()
}

// Release frees the builder.
func (b *recordBuilder) Release() { b.builder.Release() }
