// Package entity defines the bulk entity model: single-record entities,
// multi-record containers whose sub-entities share a record type and parent,
// and the location target whose named sub-target collections are flattened
// into one row stream.
//
// Every record type is described by a Descriptor in the catalog; the bulk file
// reader and writer only ever talk to descriptors.
package entity

import (
	"time"

	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// Well-known columns.
const (
	ColumnType     = "Type"
	ColumnStatus   = "Status"
	ColumnID       = "Id"
	ColumnParentID = "Parent Id"
	ColumnName     = "Name"
	ColumnClientID = "Client Id"
	ColumnModified = "Modified Time"
	ColumnError    = "Error"
	ColumnErrorNum = "Error Number"
	ColumnCampaign = "Campaign"
	ColumnAdGroup  = "Ad Group"
	ColumnTarget   = "Target"
)

// FormatVersionType is the record type of the header row declaring the file's
// format version in its Name column.
const FormatVersionType = "Format Version"

// Entity is one logical bulk entity. RecordType returns the discriminator
// written to the Type column.
type Entity interface {
	RecordType() string
}

// Common holds the columns carried by every entity row.
type Common struct {
	ClientID     *string
	ModifiedTime *time.Time
	// Error and ErrorNumber are populated by the service in upload result files.
	Error       *string
	ErrorNumber *int64
}

// HasError reports whether the service flagged the entity in a result file.
func (c *Common) HasError() bool {
	return c.Error != nil && *c.Error != ""
}

var commonTable = mapping.Table[*Common]{
	mapping.OptionalText(ColumnClientID, func(c *Common) **string { return &c.ClientID }),
	mapping.OptionalTimestamp(ColumnModified, func(c *Common) **time.Time { return &c.ModifiedTime }).RO(),
	mapping.OptionalText(ColumnError, func(c *Common) **string { return &c.Error }).RO(),
	mapping.OptionalInt64(ColumnErrorNum, func(c *Common) **int64 { return &c.ErrorNumber }).RO(),
}

// Identity holds the id, parent id and status of a single-record entity.
type Identity struct {
	ID       *int64
	ParentID int64
	Status   string
}

var identityTable = mapping.Table[*Identity]{
	mapping.Text(ColumnStatus, func(i *Identity) *string { return &i.Status }),
	mapping.OptionalInt64(ColumnID, func(i *Identity) **int64 { return &i.ID }),
	mapping.Int64(ColumnParentID, func(i *Identity) *int64 { return &i.ParentID }).Req(),
}

// RowFields holds the columns every row of a container carries on its own:
// the row id and, in result files, the service's verdict on that row.
type RowFields struct {
	Common
	ID *int64
}

var rowTable = append(
	mapping.Embed(commonTable, func(r *RowFields) *Common { return &r.Common }),
	mapping.OptionalInt64(ColumnID, func(r *RowFields) **int64 { return &r.ID }),
)

var rowSchema = mapping.NewSchema("Row", rowTable)

// bidTable prefixes a sub-entity table with the per-row columns.
func bidTable[B any](row func(*B) *RowFields, t mapping.Table[*B]) mapping.Table[*B] {
	return append(mapping.Embed(rowTable, row), t...)
}

func anyRowError[B any](placeholder *RowFields, bids []B, row func(*B) *RowFields) bool {
	if placeholder.HasError() {
		return true
	}
	for i := range bids {
		if row(&bids[i]).HasError() {
			return true
		}
	}
	return false
}

// ErrorCarrier is implemented by every catalog entity. Containers report an
// error when any of their rows was flagged.
type ErrorCarrier interface {
	HasError() bool
}
