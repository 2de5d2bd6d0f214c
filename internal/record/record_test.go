package record

import (
	"reflect"
	"testing"
)

func TestFromRow(t *testing.T) {
	r, err := FromRow([]string{"Type", "Id", "Name"}, []string{"Campaign", "", "c1"})
	if err != nil {
		t.Fatalf("FromRow: %v", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
	v, ok := r.Get("Id")
	if !ok || v != "" {
		t.Errorf("Get(Id) = (%q, %v), want (\"\", true)", v, ok)
	}
	if _, ok := r.Get("Status"); ok {
		t.Error("Get(Status) reported present for an absent column")
	}
}

func TestFromRow_Errors(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		row    []string
	}{
		{"length mismatch", []string{"a", "b"}, []string{"1"}},
		{"duplicate column", []string{"a", "a"}, []string{"1", "2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromRow(tc.header, tc.row); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSet_KeepsOrder(t *testing.T) {
	r := New()
	r.Set("b", "1")
	r.Set("a", "2")
	r.Set("b", "3")

	if got, want := r.Names(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if v, _ := r.Get("b"); v != "3" {
		t.Errorf("Get(b) = %q, want %q", v, "3")
	}
}

func TestRow_AbsentIsEmpty(t *testing.T) {
	r := New()
	r.Set("Id", "7")
	got := r.Row([]string{"Type", "Id"})
	if want := []string{"", "7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Row = %v, want %v", got, want)
	}
}

func TestClone_Independent(t *testing.T) {
	r := New()
	r.Set("Id", "1")
	c := r.Clone()
	c.Set("Id", "2")
	c.Set("Extra", "x")

	if v, _ := r.Get("Id"); v != "1" {
		t.Errorf("original mutated: Id = %q", v)
	}
	if r.Has("Extra") {
		t.Error("original gained a column")
	}
}
