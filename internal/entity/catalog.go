package entity

import (
	"fmt"

	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/record"
)

// Descriptor maps one record type to and from entities.
type Descriptor struct {
	// Type is the record type discriminator.
	Type string
	// Multi marks container types: consecutive rows sharing the record type and
	// Parent Id form one entity.
	Multi bool

	columns func(v mapping.Version) []string
	read    func(rows []*record.Record, v mapping.Version) (Entity, error)
	write   func(e Entity, opts mapping.WriteOptions) ([]*record.Record, error)
}

// Columns returns the columns used by the record type, Type first.
func (d *Descriptor) Columns(v mapping.Version) []string {
	return uniq(append([]string{ColumnType}, d.columns(v)...))
}

// Read builds one entity from its rows. Single-record types take exactly one row.
func (d *Descriptor) Read(rows []*record.Record, v mapping.Version) (Entity, error) {
	if len(rows) == 0 {
		return nil, &mapping.MappingError{Type: d.Type, Err: fmt.Errorf("no rows")}
	}
	if !d.Multi && len(rows) != 1 {
		return nil, &mapping.MappingError{Type: d.Type, Err: fmt.Errorf("single-record type given %d rows", len(rows))}
	}
	return d.read(rows, v)
}

// Write renders e as one or more records, each carrying the Type column first.
func (d *Descriptor) Write(e Entity, opts mapping.WriteOptions) ([]*record.Record, error) {
	return d.write(e, opts)
}

// Lookup returns the descriptor of a record type.
func Lookup(recordType string) (*Descriptor, bool) {
	d, ok := registry[recordType]
	return d, ok
}

// DescriptorFor returns the descriptor of e's record type.
func DescriptorFor(e Entity) (*Descriptor, error) {
	if e == nil {
		return nil, fmt.Errorf("nil entity")
	}
	d, ok := Lookup(e.RecordType())
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", e.RecordType())
	}
	return d, nil
}

// Types returns every registered record type in catalog order.
func Types() []string {
	out := make([]string, len(catalog))
	for i, d := range catalog {
		out[i] = d.Type
	}
	return out
}

// Header returns the column header of a bulk file of version v: Type first,
// then the columns of every record type in catalog order, then Name.
func Header(v mapping.Version) []string {
	cols := []string{ColumnType}
	for _, d := range catalog {
		cols = append(cols, d.Columns(v)...)
	}
	cols = append(cols, ColumnName)
	return uniq(cols)
}

// ParentKey returns the grouping key of a container row.
func ParentKey(rec *record.Record) string {
	v, _ := rec.Get(ColumnParentID)
	return v
}

var catalog = []*Descriptor{
	single(TypeCampaign, func() *Campaign { return &Campaign{} }, campaignSchema),
	single(TypeAdGroup, func() *AdGroup { return &AdGroup{} }, adGroupSchema),
	single(TypeKeyword, func() *Keyword { return &Keyword{} }, keywordSchema),
	single(TypeCampaignNegativeKeyword, func() *NegativeKeyword { return &NegativeKeyword{Level: CampaignLevel} }, negativeKeywordSchema),
	single(TypeAdGroupNegativeKeyword, func() *NegativeKeyword { return &NegativeKeyword{Level: AdGroupLevel} }, negativeKeywordSchema),
	container(TypeAgeTarget, func() *AgeTarget { return &AgeTarget{} }, ageTargetSchema, ageBidSchema,
		func(t *AgeTarget) *[]AgeTargetBid { return &t.Bids },
		func(t *AgeTarget) *RowFields { return &t.Placeholder }),
	container(TypeDayTimeTarget, func() *DayTimeTarget { return &DayTimeTarget{} }, dayTimeTargetSchema, dayTimeBidSchema,
		func(t *DayTimeTarget) *[]DayTimeTargetBid { return &t.Bids },
		func(t *DayTimeTarget) *RowFields { return &t.Placeholder }),
	{
		Type:    TypeLocationTarget,
		Multi:   true,
		columns: locationTargetColumns,
		read:    readLocationTarget,
		write:   writeLocationTarget,
	},
}

var registry = func() map[string]*Descriptor {
	m := make(map[string]*Descriptor, len(catalog))
	for _, d := range catalog {
		m[d.Type] = d
	}
	return m
}()

func single[T Entity](recordType string, newFn func() T, schema *mapping.Schema[T]) *Descriptor {
	return &Descriptor{
		Type: recordType,
		columns: func(v mapping.Version) []string {
			rec := record.New()
			_ = schema.Write(newFn(), rec, mapping.WriteOptions{Version: v})
			return rec.Names()
		},
		read: func(rows []*record.Record, v mapping.Version) (Entity, error) {
			e := newFn()
			if err := schema.Read(rows[0], e, v); err != nil {
				return nil, err
			}
			return e, nil
		},
		write: func(e Entity, opts mapping.WriteOptions) ([]*record.Record, error) {
			t, ok := e.(T)
			if !ok {
				return nil, fmt.Errorf("entity %T does not match record type %s", e, recordType)
			}
			rec := record.New()
			rec.Set(ColumnType, recordType)
			if err := schema.Write(t, rec, opts); err != nil {
				return nil, err
			}
			return []*record.Record{rec}, nil
		},
	}
}

// container describes a multi-record type: the header schema is written on
// every row and each sub-entity adds its own columns. A row with an empty
// Target column is the placeholder standing for an empty sub-entity list.
// Header columns must agree across the rows of one entity.
func container[C Entity, B any](recordType string, newFn func() C, header *mapping.Schema[C], sub *mapping.Schema[*B],
	items func(C) *[]B, placeholder func(C) *RowFields) *Descriptor {
	return &Descriptor{
		Type:  recordType,
		Multi: true,
		columns: func(v mapping.Version) []string {
			return append(header.Columns(v), sub.Columns(v)...)
		},
		read: func(rows []*record.Record, v mapping.Version) (Entity, error) {
			if err := checkHeaderColumns(recordType, header.Columns(v), rows); err != nil {
				return nil, err
			}
			c := newFn()
			if err := header.Read(rows[0], c, v); err != nil {
				return nil, err
			}
			list := items(c)
			for _, rec := range rows {
				if isPlaceholder(rec) {
					if err := rowSchema.Read(rec, placeholder(c), v); err != nil {
						return nil, err
					}
					continue
				}
				var b B
				if err := sub.Read(rec, &b, v); err != nil {
					return nil, err
				}
				*list = append(*list, b)
			}
			return c, nil
		},
		write: func(e Entity, opts mapping.WriteOptions) ([]*record.Record, error) {
			c, ok := e.(C)
			if !ok {
				return nil, fmt.Errorf("entity %T does not match record type %s", e, recordType)
			}
			headerRecord := func() (*record.Record, error) {
				rec := record.New()
				rec.Set(ColumnType, recordType)
				if err := header.Write(c, rec, opts); err != nil {
					return nil, err
				}
				return rec, nil
			}
			list := *items(c)
			if len(list) == 0 {
				rec, err := headerRecord()
				if err != nil {
					return nil, err
				}
				if err := rowSchema.Write(placeholder(c), rec, opts); err != nil {
					return nil, err
				}
				return []*record.Record{rec}, nil
			}
			recs := make([]*record.Record, 0, len(list))
			for i := range list {
				rec, err := headerRecord()
				if err != nil {
					return nil, err
				}
				if err := sub.Write(&list[i], rec, opts); err != nil {
					return nil, err
				}
				if isPlaceholder(rec) {
					return nil, &mapping.MappingError{Type: recordType, Column: ColumnTarget,
						Err: fmt.Errorf("sub-entity %d has an empty target", i)}
				}
				recs = append(recs, rec)
			}
			return recs, nil
		},
	}
}

// checkHeaderColumns rejects a row group whose rows disagree on a column
// that belongs to the container rather than to one of its rows.
func checkHeaderColumns(recordType string, columns []string, rows []*record.Record) error {
	for _, col := range columns {
		want, _ := rows[0].Get(col)
		for i, rec := range rows[1:] {
			if got, _ := rec.Get(col); got != want {
				return &mapping.MappingError{Type: recordType, Column: col,
					Err: fmt.Errorf("row %d has %q, first row has %q", i+2, got, want)}
			}
		}
	}
	return nil
}

func isPlaceholder(rec *record.Record) bool {
	v, ok := rec.Get(ColumnTarget)
	return !ok || v == ""
}

func uniq(cols []string) []string {
	seen := make(map[string]struct{}, len(cols))
	out := cols[:0]
	for _, c := range cols {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
