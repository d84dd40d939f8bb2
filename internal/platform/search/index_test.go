package search

import (
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewMemIndex()
	if err != nil {
		t.Fatalf("NewMemIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	docs := []Document{
		{ID: "n1", Kind: "NAMASTE", Code: "AYU-DIG-001", Title: "Grahani Roga", Description: "Digestive disorder", Extra: []string{"Digestive System"}},
		{ID: "n2", Kind: "NAMASTE", Code: "AYU-VAT-001", Title: "Vata Vyadhi", Extra: []string{"Nervous"}},
		{ID: "i1", Kind: "ICD", Code: "1A00-1A9Z", Title: "Intestinal infectious diseases"},
		{ID: "t1", Kind: "TM2", Code: "TM-GI-001", Title: "Spleen qi deficiency pattern", Extra: []string{"digestive"}},
	}
	for _, d := range docs {
		if err := idx.Put(d); err != nil {
			t.Fatalf("Put %s: %v", d.ID, err)
		}
	}
	return idx
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestIndex_Search(t *testing.T) {
	idx := newTestIndex(t)

	tests := []struct {
		name string
		kind string
		text string
		want []string
		not  []string
	}{
		{"title term", "NAMASTE", "grahani", []string{"n1"}, []string{"n2"}},
		{"title prefix", "NAMASTE", "Grah", []string{"n1"}, nil},
		{"code substring case-insensitive", "NAMASTE", "dig-001", []string{"n1"}, []string{"n2"}},
		{"kind filter", "ICD", "1a00", []string{"i1"}, []string{"n1"}},
		{"extra field", "TM2", "digestive", []string{"t1"}, nil},
		{"all kinds", "", "digestive", []string{"n1", "t1"}, []string{"i1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := idx.Search(tt.kind, tt.text, 10)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			for _, w := range tt.want {
				if !contains(ids, w) {
					t.Errorf("expected %s in %v", w, ids)
				}
			}
			for _, n := range tt.not {
				if contains(ids, n) {
					t.Errorf("did not expect %s in %v", n, ids)
				}
			}
		})
	}
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.Search("NAMASTE", "   ", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no results, got %v", ids)
	}
}

func TestIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Delete("n1"); err != nil {
		t.Fatal(err)
	}
	ids, _ := idx.Search("NAMASTE", "grahani", 10)
	if contains(ids, "n1") {
		t.Error("expected deleted document to be gone")
	}
	n, err := idx.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 docs, got %d", n)
	}
}
