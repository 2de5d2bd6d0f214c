package entity

import (
	"errors"
	"fmt"

	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/record"
)

// ColumnLocationType discriminates the sub-target of a location target row.
const ColumnLocationType = "Location Type"

// Location type discriminator values.
const (
	LocationCity       = "City"
	LocationMetroArea  = "Metro Area"
	LocationState      = "State"
	LocationCountry    = "Country"
	LocationPostalCode = "Postal Code"
)

// SubTarget is one named collection of a location target. A nil *SubTarget
// means the collection is not part of the entity; a non-nil one with no bids
// replaces the remote collection with nothing.
type SubTarget[B any] struct {
	// Placeholder carries the row columns of the row written when Bids is empty.
	Placeholder RowFields
	Bids        []B
}

// CityBid targets a city.
type CityBid struct {
	RowFields
	City          string
	BidAdjustment *float64
}

// MetroAreaBid targets a metro area.
type MetroAreaBid struct {
	RowFields
	MetroArea     string
	BidAdjustment *float64
}

// StateBid targets a state or province.
type StateBid struct {
	RowFields
	State         string
	BidAdjustment *float64
}

// CountryBid targets or excludes a country.
type CountryBid struct {
	RowFields
	CountryCode   string
	BidAdjustment *float64
	Excluded      *bool
}

// PostalCodeBid targets a postal code.
type PostalCodeBid struct {
	RowFields
	PostalCode    string
	BidAdjustment *float64
}

// LocationTarget groups the location bids of an ad group. Its rows share the
// Ad Group Location Target record type and are told apart by Location Type.
type LocationTarget struct {
	TargetHeader
	IntentOption *string

	City       *SubTarget[CityBid]
	MetroArea  *SubTarget[MetroAreaBid]
	State      *SubTarget[StateBid]
	Country    *SubTarget[CountryBid]
	PostalCode *SubTarget[PostalCodeBid]
}

func (*LocationTarget) RecordType() string { return TypeLocationTarget }

func (t *LocationTarget) HasError() bool {
	for _, k := range locationKinds {
		if k.hasError(t) {
			return true
		}
	}
	return false
}

var locationTargetSchema = mapping.NewSchema(TypeLocationTarget,
	mapping.Embed(targetHeaderTable, func(t *LocationTarget) *TargetHeader { return &t.TargetHeader }),
	mapping.Table[*LocationTarget]{
		mapping.OptionalText("Intent Option", func(t *LocationTarget) **string { return &t.IntentOption }),
	},
)

// locationKind binds one discriminator value to its bid schema and to the
// collection slot of LocationTarget it fills.
type locationKind[B any] struct {
	discriminator string
	bid           *mapping.Schema[*B]
	slot          func(*LocationTarget) **SubTarget[B]
	row           func(*B) *RowFields
}

// locationCodec erases the bid type so the kinds can share one table.
type locationCodec interface {
	locationType() string
	columns(v mapping.Version) []string
	readRow(rec *record.Record, t *LocationTarget, v mapping.Version) error
	writeRows(t *LocationTarget, opts mapping.WriteOptions) ([]*record.Record, error)
	present(t *LocationTarget) bool
	hasError(t *LocationTarget) bool
}

func (k locationKind[B]) locationType() string { return k.discriminator }

func (k locationKind[B]) columns(v mapping.Version) []string { return k.bid.Columns(v) }

func (k locationKind[B]) present(t *LocationTarget) bool { return *k.slot(t) != nil }

func (k locationKind[B]) hasError(t *LocationTarget) bool {
	sub := *k.slot(t)
	return sub != nil && anyRowError(&sub.Placeholder, sub.Bids, k.row)
}

func (k locationKind[B]) readRow(rec *record.Record, t *LocationTarget, v mapping.Version) error {
	slot := k.slot(t)
	if *slot == nil {
		*slot = &SubTarget[B]{}
	}
	if isPlaceholder(rec) {
		return rowSchema.Read(rec, &(*slot).Placeholder, v)
	}
	var b B
	if err := k.bid.Read(rec, &b, v); err != nil {
		return err
	}
	(*slot).Bids = append((*slot).Bids, b)
	return nil
}

func (k locationKind[B]) writeRows(t *LocationTarget, opts mapping.WriteOptions) ([]*record.Record, error) {
	sub := *k.slot(t)
	if sub == nil {
		return nil, nil
	}
	header := func() (*record.Record, error) {
		rec := record.New()
		rec.Set(ColumnType, TypeLocationTarget)
		if err := locationTargetSchema.Write(t, rec, opts); err != nil {
			return nil, err
		}
		rec.Set(ColumnLocationType, k.discriminator)
		return rec, nil
	}
	if len(sub.Bids) == 0 {
		rec, err := header()
		if err != nil {
			return nil, err
		}
		if err := rowSchema.Write(&sub.Placeholder, rec, opts); err != nil {
			return nil, err
		}
		return []*record.Record{rec}, nil
	}
	recs := make([]*record.Record, 0, len(sub.Bids))
	for i := range sub.Bids {
		rec, err := header()
		if err != nil {
			return nil, err
		}
		if err := k.bid.Write(&sub.Bids[i], rec, opts); err != nil {
			return nil, err
		}
		if isPlaceholder(rec) {
			return nil, &mapping.MappingError{Type: TypeLocationTarget, Column: ColumnTarget,
				Err: fmt.Errorf("%s bid %d has an empty target", k.discriminator, i)}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

var locationKinds = []locationCodec{
	locationKind[CityBid]{
		discriminator: LocationCity,
		bid: mapping.NewSchema(LocationCity, bidTable(
			func(b *CityBid) *RowFields { return &b.RowFields },
			mapping.Table[*CityBid]{
				mapping.Text(ColumnTarget, func(b *CityBid) *string { return &b.City }).Req(),
				mapping.OptionalFloat("Bid Adjustment", func(b *CityBid) **float64 { return &b.BidAdjustment }),
			},
		)),
		row:  func(b *CityBid) *RowFields { return &b.RowFields },
		slot: func(t *LocationTarget) **SubTarget[CityBid] { return &t.City },
	},
	locationKind[MetroAreaBid]{
		discriminator: LocationMetroArea,
		bid: mapping.NewSchema(LocationMetroArea, bidTable(
			func(b *MetroAreaBid) *RowFields { return &b.RowFields },
			mapping.Table[*MetroAreaBid]{
				mapping.Text(ColumnTarget, func(b *MetroAreaBid) *string { return &b.MetroArea }).Req(),
				mapping.OptionalFloat("Bid Adjustment", func(b *MetroAreaBid) **float64 { return &b.BidAdjustment }),
			},
		)),
		row:  func(b *MetroAreaBid) *RowFields { return &b.RowFields },
		slot: func(t *LocationTarget) **SubTarget[MetroAreaBid] { return &t.MetroArea },
	},
	locationKind[StateBid]{
		discriminator: LocationState,
		bid: mapping.NewSchema(LocationState, bidTable(
			func(b *StateBid) *RowFields { return &b.RowFields },
			mapping.Table[*StateBid]{
				mapping.Text(ColumnTarget, func(b *StateBid) *string { return &b.State }).Req(),
				mapping.OptionalFloat("Bid Adjustment", func(b *StateBid) **float64 { return &b.BidAdjustment }),
			},
		)),
		row:  func(b *StateBid) *RowFields { return &b.RowFields },
		slot: func(t *LocationTarget) **SubTarget[StateBid] { return &t.State },
	},
	locationKind[CountryBid]{
		discriminator: LocationCountry,
		bid: mapping.NewSchema(LocationCountry, bidTable(
			func(b *CountryBid) *RowFields { return &b.RowFields },
			mapping.Table[*CountryBid]{
				mapping.Text(ColumnTarget, func(b *CountryBid) *string { return &b.CountryCode }).Req(),
				mapping.OptionalFloat("Bid Adjustment", func(b *CountryBid) **float64 { return &b.BidAdjustment }),
				mapping.OptionalBool("Is Excluded", func(b *CountryBid) **bool { return &b.Excluded }),
			},
		)),
		row:  func(b *CountryBid) *RowFields { return &b.RowFields },
		slot: func(t *LocationTarget) **SubTarget[CountryBid] { return &t.Country },
	},
	locationKind[PostalCodeBid]{
		discriminator: LocationPostalCode,
		bid: mapping.NewSchema(LocationPostalCode, bidTable(
			func(b *PostalCodeBid) *RowFields { return &b.RowFields },
			mapping.Table[*PostalCodeBid]{
				mapping.Text(ColumnTarget, func(b *PostalCodeBid) *string { return &b.PostalCode }).Req(),
				mapping.OptionalFloat("Bid Adjustment", func(b *PostalCodeBid) **float64 { return &b.BidAdjustment }),
			},
		)),
		row:  func(b *PostalCodeBid) *RowFields { return &b.RowFields },
		slot: func(t *LocationTarget) **SubTarget[PostalCodeBid] { return &t.PostalCode },
	},
}

func locationKindFor(discriminator string) (locationCodec, bool) {
	for _, k := range locationKinds {
		if k.locationType() == discriminator {
			return k, true
		}
	}
	return nil, false
}

var errNoSubTarget = errors.New("location target has no sub-target collection")

func readLocationTarget(rows []*record.Record, v mapping.Version) (Entity, error) {
	if err := checkHeaderColumns(TypeLocationTarget, locationTargetSchema.Columns(v), rows); err != nil {
		return nil, err
	}
	t := &LocationTarget{}
	if err := locationTargetSchema.Read(rows[0], t, v); err != nil {
		return nil, err
	}
	for _, rec := range rows {
		raw, ok := rec.Get(ColumnLocationType)
		if !ok {
			return nil, &mapping.MappingError{Type: TypeLocationTarget, Column: ColumnLocationType, Err: errors.New("required column is missing")}
		}
		kind, ok := locationKindFor(raw)
		if !ok {
			return nil, &mapping.FormatError{Column: ColumnLocationType, Value: raw, Err: errors.New("unknown location type")}
		}
		if err := kind.readRow(rec, t, v); err != nil {
			return nil, err
		}
	}
	if err := validateLocationTarget(t); err != nil {
		return nil, err
	}
	return t, nil
}

func writeLocationTarget(e Entity, opts mapping.WriteOptions) ([]*record.Record, error) {
	t, ok := e.(*LocationTarget)
	if !ok {
		return nil, fmt.Errorf("entity %T is not a *LocationTarget", e)
	}
	if err := validateLocationTarget(t); err != nil {
		return nil, err
	}
	var recs []*record.Record
	for _, k := range locationKinds {
		rows, err := k.writeRows(t, opts)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rows...)
	}
	return recs, nil
}

func validateLocationTarget(t *LocationTarget) error {
	for _, k := range locationKinds {
		if k.present(t) {
			return nil
		}
	}
	return &mapping.MappingError{Type: TypeLocationTarget, Err: errNoSubTarget}
}

func locationTargetColumns(v mapping.Version) []string {
	cols := locationTargetSchema.Columns(v)
	cols = append(cols, ColumnLocationType)
	for _, k := range locationKinds {
		cols = append(cols, k.columns(v)...)
	}
	return cols
}
