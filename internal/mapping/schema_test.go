package mapping

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/infobloxopen/cq-source-bulk/internal/record"
)

type base struct {
	ClientID *string
	Modified *time.Time
}

type widget struct {
	base
	ID       int64
	Name     string
	Owner    string
	Bid      *float64
	OwnerCol string
	URL      *string
}

var baseTable = Table[*base]{
	OptionalText("Client Id", func(b *base) **string { return &b.ClientID }),
	OptionalTimestamp("Modified Time", func(b *base) **time.Time { return &b.Modified }).RO(),
}

var widgetTable = Table[*widget]{
	Int64("Id", func(w *widget) *int64 { return &w.ID }).Req(),
	Text("Name", func(w *widget) *string { return &w.Name }),
	Text("", func(w *widget) *string { return &w.Owner }).Named(func(w *widget) string { return w.OwnerCol }),
	OptionalFloat("Bid", func(w *widget) **float64 { return &w.Bid }),
	OptionalText("Final Url", func(w *widget) **string { return &w.URL }).From(V6),
}

var widgetSchema = NewSchema("Widget",
	Embed(baseTable, func(w *widget) *base { return &w.base }),
	widgetTable,
)

func ptr[T any](v T) *T { return &v }

func TestSchema_WriteOrder(t *testing.T) {
	w := &widget{
		base:     base{ClientID: ptr("c-1"), Modified: ptr(time.Unix(0, 0).UTC())},
		ID:       9,
		Name:     "w",
		Owner:    "camp",
		OwnerCol: "Campaign",
		Bid:      ptr(0.5),
	}
	rec := record.New()
	if err := widgetSchema.Write(w, rec, WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []string{"Client Id", "Modified Time", "Id", "Name", "Campaign", "Bid", "Final Url"}
	if got := rec.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if v, _ := rec.Get("Campaign"); v != "camp" {
		t.Errorf("dynamic column value = %q, want %q", v, "camp")
	}
}

func TestSchema_ExcludeReadonly(t *testing.T) {
	w := &widget{base: base{Modified: ptr(time.Now())}, ID: 1, OwnerCol: "Campaign"}
	rec := record.New()
	if err := widgetSchema.Write(w, rec, WriteOptions{ExcludeReadonly: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rec.Has("Modified Time") {
		t.Error("read-only column written with ExcludeReadonly")
	}
}

func TestSchema_VersionFilter(t *testing.T) {
	w := &widget{ID: 1, OwnerCol: "Campaign", URL: ptr("https://example.com")}
	rec := record.New()
	if err := widgetSchema.Write(w, rec, WriteOptions{Version: V5}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rec.Has("Final Url") {
		t.Error("column introduced in 6.0 written for 5.0")
	}
	if got := widgetSchema.Columns(V5); reflect.DeepEqual(got, widgetSchema.Columns(V6)) {
		t.Errorf("Columns(V5) = Columns(V6) = %v", got)
	}
}

func TestSchema_RoundTrip(t *testing.T) {
	in := &widget{
		base:     base{ClientID: ptr(""), Modified: ptr(time.Date(2030, 1, 2, 3, 4, 5, 6_000_000, time.UTC))},
		ID:       -12,
		Name:     "name",
		Owner:    "ag",
		OwnerCol: "Ad Group",
		Bid:      ptr(1.75),
		URL:      ptr("https://example.com/x"),
	}
	rec := record.New()
	if err := widgetSchema.Write(in, rec, WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := &widget{OwnerCol: "Ad Group"}
	if err := widgetSchema.Read(rec, out, V6); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestSchema_ReadErrors(t *testing.T) {
	t.Run("missing required column", func(t *testing.T) {
		rec, _ := record.FromRow([]string{"Name"}, []string{"x"})
		err := widgetSchema.Read(rec, &widget{OwnerCol: "Campaign"}, V6)
		var me *MappingError
		if !errors.As(err, &me) {
			t.Fatalf("err = %v, want *MappingError", err)
		}
		if me.Column != "Id" {
			t.Errorf("Column = %q, want %q", me.Column, "Id")
		}
	})

	t.Run("unparsable value", func(t *testing.T) {
		rec, _ := record.FromRow([]string{"Id", "Bid"}, []string{"1", "cheap"})
		err := widgetSchema.Read(rec, &widget{OwnerCol: "Campaign"}, V6)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("err = %v, want *FormatError", err)
		}
		if fe.Column != "Bid" || fe.Value != "cheap" {
			t.Errorf("FormatError = %+v", fe)
		}
	})

	t.Run("absent optional column leaves field untouched", func(t *testing.T) {
		rec, _ := record.FromRow([]string{"Id"}, []string{"3"})
		w := &widget{Name: "keep", OwnerCol: "Campaign"}
		if err := widgetSchema.Read(rec, w, V6); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if w.Name != "keep" {
			t.Errorf("Name = %q, want untouched", w.Name)
		}
	})
}

func TestNewSchema_PanicsOnSharedColumn(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for a column claimed by two levels")
		}
	}()
	NewSchema("Dup",
		Table[*widget]{Text("Name", func(w *widget) *string { return &w.Name })},
		Table[*widget]{Text("Name", func(w *widget) *string { return &w.Owner })},
	)
}

func TestSchema_EmptyDynamicColumn(t *testing.T) {
	err := widgetSchema.Write(&widget{ID: 1}, record.New(), WriteOptions{})
	var me *MappingError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
}

func TestSchema_RejectsUnparsableYear(t *testing.T) {
	type event struct {
		Day *time.Time
	}
	dates := NewSchema("Event", Table[*event]{
		OptionalDate("Day", func(e *event) **time.Time { return &e.Day }),
	})
	tests := []struct {
		name string
		err  func() error
		col  string
	}{
		{"timestamp after 9999", func() error {
			w := &widget{ID: 1, OwnerCol: "Campaign"}
			w.Modified = ptr(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC))
			return widgetSchema.Write(w, record.New(), WriteOptions{})
		}, "Modified Time"},
		{"timestamp before year 0", func() error {
			w := &widget{ID: 1, OwnerCol: "Campaign"}
			w.Modified = ptr(time.Date(-1, 1, 1, 0, 0, 0, 0, time.UTC))
			return widgetSchema.Write(w, record.New(), WriteOptions{})
		}, "Modified Time"},
		{"date after 9999", func() error {
			return dates.Write(&event{Day: ptr(time.Date(12000, 6, 1, 0, 0, 0, 0, time.UTC))}, record.New(), WriteOptions{})
		}, "Day"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var fe *FormatError
			if err := tc.err(); !errors.As(err, &fe) || fe.Column != tc.col {
				t.Errorf("err = %v, want *FormatError on %q", err, tc.col)
			}
		})
	}

	t.Run("year 9999 round trips", func(t *testing.T) {
		in := &event{Day: ptr(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))}
		rec := record.New()
		if err := dates.Write(in, rec, WriteOptions{}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		out := &event{}
		if err := dates.Read(rec, out, V6); err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !out.Day.Equal(*in.Day) {
			t.Errorf("Day = %v, want %v", out.Day, in.Day)
		}
	})
}
