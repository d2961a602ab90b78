//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"
)

const faissCompiled = false

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable native FAISS index loading.
type FAISSIndex struct{}

// OpenFAISSIndex returns an error because FAISS is not available.
func OpenFAISSIndex(path string) (*FAISSIndex, error) {
	return nil, fmt.Errorf("FAISS not available: build with -tags=faiss and install FAISS library")
}

// Search is not implemented without FAISS.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	return nil, fmt.Errorf("FAISS not available")
}

// Dimensions returns 0 without FAISS.
func (f *FAISSIndex) Dimensions() int {
	return 0
}

// Metric returns the zero metric without FAISS.
func (f *FAISSIndex) Metric() Metric {
	return ""
}

// Size returns 0 without FAISS.
func (f *FAISSIndex) Size() int {
	return 0
}

// Close is a no-op without FAISS.
func (f *FAISSIndex) Close() error {
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(BackendFAISS)
}
