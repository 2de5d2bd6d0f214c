package entity

import (
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// Record types of the multi-record target containers.
const (
	TypeAgeTarget      = "Ad Group Age Target"
	TypeDayTimeTarget  = "Ad Group Day Time Target"
	TypeLocationTarget = "Ad Group Location Target"
)

// TargetHeader holds the columns shared by every row of a target container.
// ParentID links the rows to the owning ad group.
type TargetHeader struct {
	Status       string
	ParentID     int64
	CampaignName string
	AdGroupName  string
}

var targetHeaderTable = mapping.Table[*TargetHeader]{
	mapping.Text(ColumnStatus, func(h *TargetHeader) *string { return &h.Status }),
	mapping.Int64(ColumnParentID, func(h *TargetHeader) *int64 { return &h.ParentID }).Req(),
	mapping.Text(ColumnCampaign, func(h *TargetHeader) *string { return &h.CampaignName }),
	mapping.Text(ColumnAdGroup, func(h *TargetHeader) *string { return &h.AdGroupName }),
}

// AgeTargetBid is one age range bid adjustment.
type AgeTargetBid struct {
	RowFields
	Age           string
	BidAdjustment *float64
}

// AgeTarget is the full set of age bids of an ad group. Uploading it replaces
// every existing age bid of that ad group.
type AgeTarget struct {
	TargetHeader
	// Placeholder carries the row columns of the single row written for an
	// empty bid list.
	Placeholder RowFields
	Bids        []AgeTargetBid
}

func (*AgeTarget) RecordType() string { return TypeAgeTarget }

func (t *AgeTarget) HasError() bool {
	return anyRowError(&t.Placeholder, t.Bids, func(b *AgeTargetBid) *RowFields { return &b.RowFields })
}

var ageTargetSchema = mapping.NewSchema(TypeAgeTarget,
	mapping.Embed(targetHeaderTable, func(t *AgeTarget) *TargetHeader { return &t.TargetHeader }),
)

var ageBidSchema = mapping.NewSchema(TypeAgeTarget+" Bid", bidTable(
	func(b *AgeTargetBid) *RowFields { return &b.RowFields },
	mapping.Table[*AgeTargetBid]{
		mapping.Text(ColumnTarget, func(b *AgeTargetBid) *string { return &b.Age }).Req(),
		mapping.OptionalFloat("Bid Adjustment", func(b *AgeTargetBid) **float64 { return &b.BidAdjustment }),
	},
))

// DayTimeTargetBid is one day and hour range bid adjustment.
type DayTimeTargetBid struct {
	RowFields
	Day           string
	FromHour      *int64
	FromMinute    *int64
	ToHour        *int64
	ToMinute      *int64
	BidAdjustment *float64
}

// DayTimeTarget is the full set of day and time bids of an ad group. The bid
// order is kept as written.
type DayTimeTarget struct {
	TargetHeader
	Placeholder RowFields
	Bids        []DayTimeTargetBid
}

func (*DayTimeTarget) RecordType() string { return TypeDayTimeTarget }

func (t *DayTimeTarget) HasError() bool {
	return anyRowError(&t.Placeholder, t.Bids, func(b *DayTimeTargetBid) *RowFields { return &b.RowFields })
}

var dayTimeTargetSchema = mapping.NewSchema(TypeDayTimeTarget,
	mapping.Embed(targetHeaderTable, func(t *DayTimeTarget) *TargetHeader { return &t.TargetHeader }),
)

var dayTimeBidSchema = mapping.NewSchema(TypeDayTimeTarget+" Bid", bidTable(
	func(b *DayTimeTargetBid) *RowFields { return &b.RowFields },
	mapping.Table[*DayTimeTargetBid]{
		mapping.Text(ColumnTarget, func(b *DayTimeTargetBid) *string { return &b.Day }).Req(),
		mapping.OptionalInt64("From Hour", func(b *DayTimeTargetBid) **int64 { return &b.FromHour }),
		mapping.OptionalInt64("From Minute", func(b *DayTimeTargetBid) **int64 { return &b.FromMinute }),
		mapping.OptionalInt64("To Hour", func(b *DayTimeTargetBid) **int64 { return &b.ToHour }),
		mapping.OptionalInt64("To Minute", func(b *DayTimeTargetBid) **int64 { return &b.ToMinute }),
		mapping.OptionalFloat("Bid Adjustment", func(b *DayTimeTargetBid) **float64 { return &b.BidAdjustment }),
	},
))
