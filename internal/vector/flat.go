package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FAISS serialization tags for flat (exact) indexes.
const (
	fourccFlatL2 = "IxF2"
	fourccFlatIP = "IxFI"
	fourccFlat   = "IxFl"
)

// FAISS metric_type enum values.
const (
	faissMetricInnerProduct int32 = 0
	faissMetricL2           int32 = 1
)

// maxFlatFloats bounds the vector payload of a flat index file (same limit FAISS applies).
const maxFlatFloats = uint64(1) << 40

// readChunkFloats bounds each read of the vector payload so memory grows with the
// bytes actually present rather than with the header's claim.
const readChunkFloats = 1 << 20

// ctxCheckEvery is how many rows are scanned between context checks during search.
const ctxCheckEvery = 4096

// ErrUnsupportedFormat is returned when an index file is not a FAISS flat index.
// Other FAISS index types can be read with the faiss build tag.
var ErrUnsupportedFormat = errors.New("unsupported index format")

// FlatIndex is an exact, brute-force index compatible with FAISS IndexFlatIP and
// IndexFlatL2. Vectors are stored row-major; the row id is the position.
type FlatIndex struct {
	dimensions int
	metric     Metric
	vectors    []float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension and metric.
func NewFlatIndex(dimensions int, metric Metric) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric != MetricInnerProduct && metric != MetricEuclidean {
		return nil, fmt.Errorf("unsupported metric %q", metric)
	}
	return &FlatIndex{dimensions: dimensions, metric: metric}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(BackendFlat)
}

// Add appends vectors; their row ids continue from the current size.
func (f *FlatIndex) Add(vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
		}
	}
	for _, vec := range vectors {
		f.vectors = append(f.vectors, vec...)
	}
	return nil
}

// Search returns exactly k results, best first. When the index holds fewer than k
// vectors the trailing slots carry RowID NoRow, as FAISS does.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.vectors) / f.dimensions
	scored := make([]VectorResult, n)
	for row := 0; row < n; row++ {
		if row%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		vec := f.vectors[row*f.dimensions : (row+1)*f.dimensions]
		scored[row] = VectorResult{RowID: int64(row), Score: f.metric.score(query, vec)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return f.metric.Before(scored[i].Score, scored[j].Score)
	})

	results := make([]VectorResult, k)
	for i := 0; i < k; i++ {
		if i < n {
			results[i] = scored[i]
			continue
		}
		results[i] = VectorResult{RowID: NoRow, Score: f.metric.sentinel()}
	}
	return results, nil
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Metric returns the metric the index was built with.
func (f *FlatIndex) Metric() Metric {
	return f.metric
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors) / f.dimensions
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

// LoadFlatIndex reads a FAISS flat index file (written by faiss.write_index for
// IndexFlatIP or IndexFlatL2).
func LoadFlatIndex(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	idx, err := ReadFlatIndex(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", filepath.Base(path), err)
	}
	return idx, nil
}

// ReadFlatIndex decodes a FAISS flat index from r. Layout (little endian): fourcc,
// d int32, ntotal int64, two int64 placeholders, is_trained byte, metric_type int32,
// [metric_arg float32 when metric_type > 1], float count uint64, floats.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	var fourcc [4]byte
	if _, err := io.ReadFull(r, fourcc[:]); err != nil {
		return nil, fmt.Errorf("read header tag: %w", err)
	}
	tag := string(fourcc[:])
	if tag != fourccFlatL2 && tag != fourccFlatIP && tag != fourccFlat {
		return nil, fmt.Errorf("%w: tag %q", ErrUnsupportedFormat, tag)
	}

	var header struct {
		D         int32
		NTotal    int64
		Dummy1    int64
		Dummy2    int64
		IsTrained uint8
		Metric    int32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Metric > 1 {
		var metricArg float32
		if err := binary.Read(r, binary.LittleEndian, &metricArg); err != nil {
			return nil, fmt.Errorf("read metric arg: %w", err)
		}
	}
	if header.D <= 0 || header.NTotal < 0 {
		return nil, fmt.Errorf("invalid header: d=%d ntotal=%d", header.D, header.NTotal)
	}

	var metric Metric
	switch header.Metric {
	case faissMetricInnerProduct:
		metric = MetricInnerProduct
	case faissMetricL2:
		metric = MetricEuclidean
	default:
		return nil, fmt.Errorf("%w: metric_type %d", ErrUnsupportedFormat, header.Metric)
	}
	if (tag == fourccFlatL2 && metric != MetricEuclidean) || (tag == fourccFlatIP && metric != MetricInnerProduct) {
		return nil, fmt.Errorf("header metric %s does not match tag %q", metric, tag)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read vector count: %w", err)
	}
	if count >= maxFlatFloats {
		return nil, fmt.Errorf("vector payload too large: %d floats", count)
	}
	if want := uint64(header.D) * uint64(header.NTotal); count != want {
		return nil, fmt.Errorf("vector payload has %d floats, header implies %d", count, want)
	}
	vectors, err := readFloats(r, count)
	if err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	return &FlatIndex{dimensions: int(header.D), metric: metric, vectors: vectors}, nil
}

func readFloats(r io.Reader, count uint64) ([]float32, error) {
	first := count
	if first > readChunkFloats {
		first = readChunkFloats
	}
	vectors := make([]float32, 0, first)
	for remaining := count; remaining > 0; {
		n := remaining
		if n > readChunkFloats {
			n = readChunkFloats
		}
		chunk := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, chunk); err != nil {
			return nil, err
		}
		vectors = append(vectors, chunk...)
		remaining -= n
	}
	return vectors, nil
}

// Save writes the index to path in FAISS flat format. Directory is created if needed.
func (f *FlatIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := f.Encode(w); err != nil {
		_ = file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return file.Close()
}

// Encode writes the index in FAISS flat format, readable by ReadFlatIndex and by
// faiss.read_index.
func (f *FlatIndex) Encode(w io.Writer) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tag, metricType := fourccFlatIP, faissMetricInnerProduct
	if f.metric == MetricEuclidean {
		tag, metricType = fourccFlatL2, faissMetricL2
	}
	if _, err := io.WriteString(w, tag); err != nil {
		return fmt.Errorf("write header tag: %w", err)
	}
	header := []interface{}{
		int32(f.dimensions),
		int64(len(f.vectors) / f.dimensions),
		int64(1 << 20),
		int64(1 << 20),
		uint8(1),
		metricType,
		uint64(len(f.vectors)),
		f.vectors,
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write index: %w", err)
		}
	}
	return nil
}
