package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"
)

func TestFlatIndex_InnerProductOrdering(t *testing.T) {
	idx, err := NewFlatIndex(2, MetricInnerProduct)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Add([][]float32{{0, 1}, {1, 0}, {0.8, 0.6}}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	wantRows := []int64{1, 2, 0}
	for i, r := range results {
		if r.RowID != wantRows[i] {
			t.Errorf("slot %d: row %d, want %d", i, r.RowID, wantRows[i])
		}
	}
	if results[0].Score < results[1].Score {
		t.Errorf("inner product scores not descending: %v", results)
	}
}

func TestFlatIndex_EuclideanOrdering(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricEuclidean)
	_ = idx.Add([][]float32{{10, 10}, {1, 1}, {3, 3}})
	results, err := idx.Search(context.Background(), []float32{0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].RowID != 1 || results[1].RowID != 2 {
		t.Errorf("rows = %d,%d, want 1,2", results[0].RowID, results[1].RowID)
	}
	if results[0].Score != 2 {
		t.Errorf("squared distance = %v, want 2", results[0].Score)
	}
}

func TestFlatIndex_TiesKeepRowOrder(t *testing.T) {
	idx, _ := NewFlatIndex(1, MetricInnerProduct)
	_ = idx.Add([][]float32{{1}, {1}, {1}})
	results, _ := idx.Search(context.Background(), []float32{1}, 3)
	for i, r := range results {
		if r.RowID != int64(i) {
			t.Errorf("slot %d: row %d, want %d", i, r.RowID, i)
		}
	}
}

func TestFlatIndex_PadsWithNoRow(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricEuclidean)
	_ = idx.Add([][]float32{{1, 1}})
	results, err := idx.Search(context.Background(), []float32{1, 1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].RowID != 0 {
		t.Errorf("first row = %d, want 0", results[0].RowID)
	}
	for _, r := range results[1:] {
		if r.RowID != NoRow {
			t.Errorf("padded slot row = %d, want NoRow", r.RowID)
		}
	}
}

func TestFlatIndex_EmptyIndex(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricInnerProduct)
	results, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.RowID != NoRow {
			t.Errorf("row = %d, want NoRow", r.RowID)
		}
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(3, MetricInnerProduct)
	if err := idx.Add([][]float32{{1, 2}}); err == nil {
		t.Error("expected error adding short vector")
	}
	if _, err := idx.Search(context.Background(), []float32{1, 2}, 1); err == nil {
		t.Error("expected error searching with short query")
	}
}

func TestFlatIndex_ContextCanceled(t *testing.T) {
	idx, _ := NewFlatIndex(1, MetricInnerProduct)
	_ = idx.Add([][]float32{{1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Search(ctx, []float32{1}, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewFlatIndex_Invalid(t *testing.T) {
	if _, err := NewFlatIndex(0, MetricInnerProduct); err == nil {
		t.Error("expected error for zero dimensions")
	}
	if _, err := NewFlatIndex(4, Metric("hamming")); err == nil {
		t.Error("expected error for unsupported metric")
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	for _, metric := range []Metric{MetricInnerProduct, MetricEuclidean} {
		t.Run(string(metric), func(t *testing.T) {
			idx, _ := NewFlatIndex(3, metric)
			_ = idx.Add([][]float32{{1, 2, 3}, {4, 5, 6}})
			path := filepath.Join(t.TempDir(), "nested", "idx.faiss")
			if err := idx.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded, err := LoadFlatIndex(path)
			if err != nil {
				t.Fatalf("LoadFlatIndex: %v", err)
			}
			if loaded.Metric() != metric || loaded.Dimensions() != 3 || loaded.Size() != 2 {
				t.Errorf("loaded metric=%s dims=%d size=%d", loaded.Metric(), loaded.Dimensions(), loaded.Size())
			}
			want, _ := idx.Search(context.Background(), []float32{1, 2, 3}, 2)
			got, _ := loaded.Search(context.Background(), []float32{1, 2, 3}, 2)
			for i := range want {
				if want[i] != got[i] {
					t.Errorf("slot %d: got %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestReadFlatIndex_GenericFlatTag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("IxFl")
	for _, v := range []interface{}{
		int32(2), int64(1), int64(1 << 20), int64(1 << 20), uint8(1), faissMetricL2,
		uint64(2), []float32{3, 4},
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	idx, err := ReadFlatIndex(&buf)
	if err != nil {
		t.Fatalf("ReadFlatIndex: %v", err)
	}
	if idx.Metric() != MetricEuclidean || idx.Size() != 1 {
		t.Errorf("metric=%s size=%d", idx.Metric(), idx.Size())
	}
}

func TestReadFlatIndex_UnsupportedTag(t *testing.T) {
	_, err := ReadFlatIndex(bytes.NewReader([]byte("IHNf0000000000000000000000000")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReadFlatIndex_CountMismatch(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("IxFI")
	for _, v := range []interface{}{
		int32(2), int64(2), int64(0), int64(0), uint8(1), faissMetricInnerProduct,
		uint64(3), []float32{1, 2, 3},
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	if _, err := ReadFlatIndex(&buf); err == nil {
		t.Error("expected error when payload size disagrees with header")
	}
}

func TestReadFlatIndex_TagMetricMismatch(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("IxF2")
	for _, v := range []interface{}{
		int32(1), int64(1), int64(0), int64(0), uint8(1), faissMetricInnerProduct,
		uint64(1), []float32{1},
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	if _, err := ReadFlatIndex(&buf); err == nil {
		t.Error("expected error when tag and metric disagree")
	}
}

func TestReadFlatIndex_Truncated(t *testing.T) {
	idx, _ := NewFlatIndex(2, MetricInnerProduct)
	_ = idx.Add([][]float32{{1, 0}, {0, 1}})
	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-3]
	if _, err := ReadFlatIndex(bytes.NewReader(data)); err == nil {
		t.Error("expected error for truncated file")
	}
}

func TestReadFlatIndex_OversizedHeaderFailsFast(t *testing.T) {
	// Header claims 2^34 floats (64 GiB) but only one vector follows.
	var buf bytes.Buffer
	buf.WriteString(fourccFlatIP)
	for _, v := range []interface{}{
		int32(1 << 10), int64(1 << 24), int64(0), int64(0), uint8(1), faissMetricInnerProduct,
		uint64(1 << 34), make([]float32, 1<<10),
	} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	if _, err := ReadFlatIndex(&buf); err == nil {
		t.Error("expected error for payload shorter than header claims")
	}
}
