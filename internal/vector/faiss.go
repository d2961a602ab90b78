//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

const faissCompiled = true

// FAISSIndex wraps a native FAISS index read from disk. Any index type FAISS can
// deserialize is supported (IVF, HNSW, ID maps); labels are returned unchanged, so
// -1 slots pass through as NoRow.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	metric     Metric
	mu         sync.RWMutex
}

// OpenFAISSIndex reads the index file at path with faiss_read_index_fname.
func OpenFAISSIndex(path string) (*FAISSIndex, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return nil, fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}

	var metric Metric
	metricType := int32(C.faiss_Index_metric_type(index))
	switch metricType {
	case faissMetricInnerProduct:
		metric = MetricInnerProduct
	case faissMetricL2:
		metric = MetricEuclidean
	default:
		C.faiss_Index_free(index)
		return nil, fmt.Errorf("%w: FAISS metric type %d", ErrUnsupportedFormat, metricType)
	}

	return &FAISSIndex{
		index:      index,
		dimensions: int(C.faiss_Index_d(index)),
		metric:     metric,
	}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Search returns k results from the native index, best first.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return nil, fmt.Errorf("FAISS index is closed")
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1, // nq (number of queries)
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]VectorResult, k)
	for i := 0; i < k; i++ {
		results[i] = VectorResult{RowID: labels[i], Score: float64(distances[i])}
	}
	return results, nil
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// Metric returns the metric the index was built with.
func (f *FAISSIndex) Metric() Metric {
	return f.metric
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(BackendFAISS)
}
