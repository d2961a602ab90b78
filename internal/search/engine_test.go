package search

import (
	"context"
	"testing"

	"github.com/hyperjump/pulpit/internal/vector"
)

func TestSearcher_Lookahead(t *testing.T) {
	s := NewSearcher(10)
	tests := []struct{ k, want int }{
		{1, 10}, {10, 10}, {11, 11}, {50, 50},
	}
	for _, tt := range tests {
		if got := s.Lookahead(tt.k); got != tt.want {
			t.Errorf("Lookahead(%d) = %d, want %d", tt.k, got, tt.want)
		}
	}
	if NewSearcher(0).Lookahead(1) != DefaultLookaheadFloor {
		t.Error("zero floor should fall back to the default")
	}
}

func TestSearcher_DropsEmptySlots(t *testing.T) {
	idx, _ := vector.NewFlatIndex(2, vector.MetricInnerProduct)
	_ = idx.Add([][]float32{{1, 0}, {0, 1}})

	got, err := NewSearcher(10).Search(context.Background(), idx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	for _, r := range got {
		if r.RowID == vector.NoRow {
			t.Error("empty slot leaked into candidates")
		}
	}
	if got[0].RowID != 0 {
		t.Errorf("best row = %d, want 0", got[0].RowID)
	}
}

func TestSearcher_DimensionMismatch(t *testing.T) {
	idx, _ := vector.NewFlatIndex(3, vector.MetricInnerProduct)
	if _, err := NewSearcher(10).Search(context.Background(), idx, []float32{1, 0}, 1); err == nil {
		t.Error("expected error for query dimension mismatch")
	}
}
