package client

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cloudquery/plugin-sdk/v4/schema"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/naming"
)

// Columns added to every entity table ahead of the bulk columns.
const (
	ColumnAccountID = "account_id"
	ColumnRequestID = "request_id"
)

// EntityTable is the table synced for one record type.
type EntityTable struct {
	RecordType string
	Descriptor *entity.Descriptor
	Table      *schema.Table
	// Sources maps a table column to the bulk column it is read from.
	Sources map[string]string
}

// buildTables returns the tables of the given record types, in order. Every
// bulk column becomes a nullable utf8 column named after its header.
func buildTables(prefix string, recordTypes []string, v mapping.Version, incremental bool) []*EntityTable {
	out := make([]*EntityTable, 0, len(recordTypes))
	for _, rt := range recordTypes {
		d, ok := entity.Lookup(rt)
		if !ok {
			continue
		}
		et := &EntityTable{
			RecordType: rt,
			Descriptor: d,
			Sources:    map[string]string{},
		}
		columns := schema.ColumnList{
			{Name: ColumnAccountID, Type: arrow.BinaryTypes.String, Description: "Account the entity was downloaded from", NotNull: true},
			{Name: ColumnRequestID, Type: arrow.BinaryTypes.String, Description: "Download job that produced the entity", NotNull: true},
		}
		seen := map[string]bool{ColumnAccountID: true, ColumnRequestID: true}
		for _, header := range d.Columns(v) {
			if header == entity.ColumnType {
				continue
			}
			name := naming.Column(header)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			et.Sources[name] = header
			columns = append(columns, schema.Column{Name: name, Type: arrow.BinaryTypes.String, Description: header})
		}
		et.Table = &schema.Table{
			Name:          naming.Table(prefix, rt),
			Description:   fmt.Sprintf("%s entities from bulk downloads", rt),
			Columns:       columns,
			IsIncremental: incremental,
		}
		schema.AddCqIDs(et.Table)
		out = append(out, et)
	}
	return out
}

// tablesByType indexes tables by record type.
func tablesByType(tables []*EntityTable) map[string]*EntityTable {
	m := make(map[string]*EntityTable, len(tables))
	for _, t := range tables {
		m[t.RecordType] = t
	}
	return m
}
