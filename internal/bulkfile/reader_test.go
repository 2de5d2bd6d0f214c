package bulkfile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/infobloxopen/cq-source-bulk/internal/entity"
	"github.com/infobloxopen/cq-source-bulk/internal/fsutil"
	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

const testHeader = "Type,Status,Id,Parent Id,Campaign,Ad Group,Target,Bid Adjustment,Keyword,Match Type,Name\n"

func newTestReader(t *testing.T, body string, opts ...Option) *Reader {
	t.Helper()
	r, err := NewReader(strings.NewReader(testHeader+body), opts...)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func readAll(t *testing.T, r *Reader) []entity.Entity {
	t.Helper()
	var out []entity.Entity
	for r.Next() {
		out = append(out, r.Entity())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("reader error: %v", err)
	}
	return out
}

func ageBids(t *testing.T, e entity.Entity) []string {
	t.Helper()
	at, ok := e.(*entity.AgeTarget)
	if !ok {
		t.Fatalf("entity is %T, want *entity.AgeTarget", e)
	}
	var ages []string
	for _, b := range at.Bids {
		ages = append(ages, b.Age)
	}
	return ages
}

func TestReader_Grouping(t *testing.T) {
	body := "Campaign,Active,1,9,Summer,,,,,,\n" +
		"Ad Group Age Target,,,5,,,EighteenToTwentyFour,10,,,\n" +
		"Ad Group Age Target,,,5,,,TwentyFiveToThirtyFour,,,,\n" +
		"Ad Group Age Target,,,6,,,SixtyFiveAndAbove,20,,,\n" +
		"Keyword,Active,3,6,Summer,Shoes,,,running shoes,Exact,\n" +
		"Ad Group Age Target,,,5,,,ThirtyFiveToFortyNine,,,,\n"
	got := readAll(t, newTestReader(t, body))

	wantTypes := []string{entity.TypeCampaign, entity.TypeAgeTarget, entity.TypeAgeTarget, entity.TypeKeyword, entity.TypeAgeTarget}
	if len(got) != len(wantTypes) {
		t.Fatalf("read %d entities, want %d", len(got), len(wantTypes))
	}
	for i, e := range got {
		if e.RecordType() != wantTypes[i] {
			t.Errorf("entity %d type = %s, want %s", i, e.RecordType(), wantTypes[i])
		}
	}
	if ages := ageBids(t, got[1]); len(ages) != 2 || ages[0] != "EighteenToTwentyFour" || ages[1] != "TwentyFiveToThirtyFour" {
		t.Errorf("first age target bids = %v", ages)
	}
	if ages := ageBids(t, got[2]); len(ages) != 1 {
		t.Errorf("second age target bids = %v, want one", ages)
	}
	// Non-adjacent rows with the same parent are a separate entity.
	if ages := ageBids(t, got[4]); len(ages) != 1 || ages[0] != "ThirtyFiveToFortyNine" {
		t.Errorf("last age target bids = %v", ages)
	}
}

func TestReader_UnknownTypeInsideGroup(t *testing.T) {
	body := "Ad Group Age Target,,,5,,,EighteenToTwentyFour,,,,\n" +
		"Ad Group Product Partition,,,5,,,,,,,\n" +
		"Ad Group Age Target,,,5,,,TwentyFiveToThirtyFour,,,,\n"
	r := newTestReader(t, body)
	got := readAll(t, r)
	if len(got) != 1 {
		t.Fatalf("read %d entities, want 1", len(got))
	}
	if ages := ageBids(t, got[0]); len(ages) != 2 {
		t.Errorf("bids = %v, want two", ages)
	}
	if r.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", r.Skipped())
	}
}

func TestReader_EmptyContainer(t *testing.T) {
	r := newTestReader(t, "Ad Group Age Target,Active,,5,,,,,,,\n")
	got := readAll(t, r)
	if len(got) != 1 {
		t.Fatalf("read %d entities, want 1", len(got))
	}
	at := got[0].(*entity.AgeTarget)
	if len(at.Bids) != 0 || at.ParentID != 5 || at.Status != "Active" {
		t.Errorf("placeholder target = %+v", at)
	}
}

func TestReader_FormatVersion(t *testing.T) {
	r := newTestReader(t, "Format Version,,,,,,,,,,5.0\nCampaign,Active,1,9,Summer,,,,,,\n",
		WithVersion(mapping.V6))
	if r.Version() != mapping.V6 {
		t.Fatalf("Version() before reading = %v, want 6.0", r.Version())
	}
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Version() != mapping.V5 {
		t.Errorf("Version() = %v, want 5.0", r.Version())
	}

	r = newTestReader(t, "Format Version,,,,,,,,,,six\n")
	_, err := r.Read()
	var fe *mapping.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("Read error = %v, want FormatError", err)
	}
}

func TestReader_FormatVersionEndsGroup(t *testing.T) {
	body := "Ad Group Age Target,,,5,,,EighteenToTwentyFour,,,,\n" +
		"Format Version,,,,,,,,,,5.0\n" +
		"Ad Group Age Target,,,5,,,SixtyFiveAndAbove,,,,\n"
	r := newTestReader(t, body, WithVersion(mapping.V6))

	e, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ages := ageBids(t, e); len(ages) != 1 || ages[0] != "EighteenToTwentyFour" {
		t.Errorf("first group bids = %v", ages)
	}
	if r.Version() != mapping.V6 {
		t.Errorf("Version() after first group = %v, want 6.0", r.Version())
	}

	e, err = r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if ages := ageBids(t, e); len(ages) != 1 || ages[0] != "SixtyFiveAndAbove" {
		t.Errorf("second group bids = %v", ages)
	}
	if r.Version() != mapping.V5 {
		t.Errorf("Version() after second group = %v, want 5.0", r.Version())
	}
}

func TestReader_PerRowErrors(t *testing.T) {
	const header = "Type,Parent Id,Id,Client Id,Error,Error Number,Target\n"
	body := "Ad Group Age Target,5,70,a,,,EighteenToTwentyFour\n" +
		"Ad Group Age Target,5,71,b,InvalidBid,1042,SixtyFiveAndAbove\n"
	r, err := NewReader(strings.NewReader(header + body))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	got := readAll(t, r)
	if len(got) != 1 {
		t.Fatalf("read %d entities, want 1", len(got))
	}
	at := got[0].(*entity.AgeTarget)
	if len(at.Bids) != 2 {
		t.Fatalf("bids = %+v, want two", at.Bids)
	}
	if at.Bids[0].HasError() {
		t.Errorf("first bid flagged: %+v", at.Bids[0].RowFields)
	}
	b := at.Bids[1]
	if b.Error == nil || *b.Error != "InvalidBid" || b.ErrorNumber == nil || *b.ErrorNumber != 1042 {
		t.Errorf("second bid error = %v/%v, want InvalidBid/1042", b.Error, b.ErrorNumber)
	}
	if b.ClientID == nil || *b.ClientID != "b" {
		t.Errorf("second bid client id = %v, want b", b.ClientID)
	}
	if !at.HasError() {
		t.Error("HasError() = false with a flagged bid")
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteEntity(at); err != nil {
		t.Fatalf("WriteEntity: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rr, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rr.Close()
	again := readAll(t, rr)
	if len(again) != 1 || !reflect.DeepEqual(again[0], at) {
		t.Errorf("rewritten entity = %+v, want %+v", again, at)
	}
}

func TestReader_TryRead(t *testing.T) {
	body := "Campaign,Active,1,9,Summer,,,,,,\n" +
		"Keyword,Active,3,6,Summer,Shoes,,,running shoes,Exact,\n" +
		"Keyword,Active,4,6,Summer,Shoes,,,trail shoes,Phrase,\n"
	r := newTestReader(t, body)

	isKeyword := func(e entity.Entity) bool { return e.RecordType() == entity.TypeKeyword }

	if _, ok, err := r.TryRead(isKeyword); ok || err != nil {
		t.Fatalf("TryRead on campaign = %v, %v; want miss", ok, err)
	}
	// A miss keeps the entity pending.
	if _, ok, err := r.TryRead(isKeyword); ok || err != nil {
		t.Fatalf("second TryRead on campaign = %v, %v; want miss", ok, err)
	}
	e, err := r.Read()
	if err != nil || e.RecordType() != entity.TypeCampaign {
		t.Fatalf("Read = %v, %v; want campaign", e, err)
	}

	var texts []string
	for {
		kw, ok, err := TryReadAs[*entity.Keyword](r, nil)
		if err != nil {
			t.Fatalf("TryReadAs: %v", err)
		}
		if !ok {
			break
		}
		texts = append(texts, kw.Text)
	}
	if len(texts) != 2 || texts[0] != "running shoes" || texts[1] != "trail shoes" {
		t.Errorf("keywords = %v", texts)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("Read at end = %v, want io.EOF", err)
	}
}

func TestReader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantRow int
		check   func(error) bool
	}{
		{
			name:    "field count",
			body:    "Campaign,Active,1,9,Summer,,,,,,\nKeyword,Active\n",
			wantRow: 3,
			check:   func(err error) bool { return err != nil },
		},
		{
			name:    "missing required column value",
			body:    "Campaign,Active,1,,Summer,,,,,,\n",
			wantRow: 2,
			check: func(err error) bool {
				var fe *mapping.FormatError
				return errors.As(err, &fe) && fe.Column == entity.ColumnParentID
			},
		},
		{
			name:    "container error reports first row",
			body:    "Campaign,Active,1,9,Summer,,,,,,\nAd Group Age Target,,,5,,,EighteenToTwentyFour,abc,,,\n",
			wantRow: 3,
			check: func(err error) bool {
				var fe *mapping.FormatError
				return errors.As(err, &fe) && fe.Value == "abc"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReader(t, tt.body)
			var err error
			for err == nil {
				_, err = r.Read()
			}
			var re *RowError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want RowError", err)
			}
			if re.Row != tt.wantRow {
				t.Errorf("row = %d, want %d", re.Row, tt.wantRow)
			}
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
			// Errors are sticky.
			if _, again := r.Read(); again != err {
				t.Errorf("second Read = %v, want %v", again, err)
			}
			if r.Next() || r.Err() != err {
				t.Errorf("Next after error = %v, Err = %v", r.Entity(), r.Err())
			}
		})
	}
}

func TestNewReader_Header(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no type column", "Id,Name\n"},
		{"duplicate column", "Type,Name,Name\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(strings.NewReader(tt.in)); err == nil {
				t.Fatal("NewReader succeeded, want error")
			}
		})
	}
}

func TestReader_BOMAndTSV(t *testing.T) {
	in := "\xEF\xBB\xBFType\tParent Id\tCampaign\nCampaign\t9\tSummer\n"
	r, err := NewReader(strings.NewReader(in), WithFileType(TSV))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got := readAll(t, r)
	if len(got) != 1 || got[0].(*entity.Campaign).Name != "Summer" {
		t.Fatalf("entities = %v", got)
	}
}

func TestOpen_DeleteOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	if err := os.WriteFile(path, []byte(testHeader+"Campaign,Active,1,9,Summer,,,,,,\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path, WithDeleteOnClose(true), WithFileSystem(fsutil.OS{}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}
}
