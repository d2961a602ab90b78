// Package vector provides read-only nearest-neighbor indexes over FAISS index files.
package vector

import "context"

// NoRow is the row id reported for a result slot that has no candidate, which happens
// when an index holds fewer vectors than the requested k.
const NoRow int64 = -1

// Index is a loaded, read-only vector index. Row ids are dense, 0-based, and assigned in
// insertion order when the index was built.
type Index interface {
	// Search returns exactly k results ordered best first for the index metric.
	// Slots without a candidate have RowID == NoRow and must be skipped by callers.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	Dimensions() int
	Size() int
	Metric() Metric
	Type() string
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	RowID int64
	Score float64 // Inner product (higher is better) or squared L2 distance (lower is better)
}
