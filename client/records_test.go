package client

import (
	"testing"

	"github.com/cloudquery/plugin-sdk/v4/schema"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
	"github.com/infobloxopen/cq-source-bulk/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func TestRecordBuilder_Container(t *testing.T) {
	tables := buildTables("bulk", []string{entity.TypeAgeTarget}, mapping.V6, false)
	b := newRecordBuilder(tables[0], mapping.V6)
	defer b.Release()

	target := &entity.AgeTarget{
		TargetHeader: entity.TargetHeader{ParentID: 7, Status: "Active"},
		Bids: []entity.AgeTargetBid{
			{Age: "EighteenToTwentyFour", BidAdjustment: ptr(10.0)},
			{Age: "SixtyFiveAndAbove"},
		},
	}
	if err := b.Append("42", "Download-1", target); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}

	rec := b.NewRecord()
	defer rec.Release()
	if b.Len() != 0 {
		t.Errorf("Len after NewRecord = %d, want 0", b.Len())
	}
	if rec.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", rec.NumRows())
	}

	tests := []struct {
		column string
		want   []string
	}{
		{"account_id", []string{"42", "42"}},
		{"request_id", []string{"Download-1", "Download-1"}},
		{"parent_id", []string{"7", "7"}},
		{"target", []string{"EighteenToTwentyFour", "SixtyFiveAndAbove"}},
		{"bid_adjustment", []string{"10", ""}},
	}
	for _, tc := range tests {
		t.Run(tc.column, func(t *testing.T) {
			got, err := testutil.RecordStrings(rec, tc.column)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("%s = %v, want %v", tc.column, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("%s[%d] = %q, want %q", tc.column, i, got[i], tc.want[i])
				}
			}
		})
	}

	idIdx := rec.Schema().FieldIndices(schema.CqIDColumn.Name)
	if len(idIdx) != 1 {
		t.Fatalf("missing %s", schema.CqIDColumn.Name)
	}
	ids := rec.Column(idIdx[0])
	if ids.NullN() != 0 {
		t.Errorf("%s has %d nulls", schema.CqIDColumn.Name, ids.NullN())
	}
	parentIdx := rec.Schema().FieldIndices(schema.CqParentIDColumn.Name)
	if len(parentIdx) != 1 || rec.Column(parentIdx[0]).NullN() != 2 {
		t.Errorf("%s should be null", schema.CqParentIDColumn.Name)
	}
}

func TestRecordBuilder_InvalidEntity(t *testing.T) {
	tables := buildTables("", []string{entity.TypeLocationTarget}, mapping.V6, false)
	b := newRecordBuilder(tables[0], mapping.V6)
	defer b.Release()

	if err := b.Append("42", "Download-1", &entity.LocationTarget{}); err == nil {
		t.Fatal("expected error for a location target without sub-targets")
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}
}
