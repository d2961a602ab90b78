// Package search runs the retrieval pipeline: validate, load the partition, embed
// the query, search the index and assemble results with their metadata.
package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/pulpit/internal/vector"
)

// DefaultLookaheadFloor is the minimum number of candidates requested from an index.
const DefaultLookaheadFloor = 10

// Searcher queries a partition index for candidates.
type Searcher struct {
	lookaheadFloor int
}

// NewSearcher creates a searcher that asks for at least lookaheadFloor candidates.
func NewSearcher(lookaheadFloor int) *Searcher {
	if lookaheadFloor <= 0 {
		lookaheadFloor = DefaultLookaheadFloor
	}
	return &Searcher{lookaheadFloor: lookaheadFloor}
}

// Lookahead returns the candidate count for k.
func (s *Searcher) Lookahead(k int) int {
	if k > s.lookaheadFloor {
		return k
	}
	return s.lookaheadFloor
}

// Search returns up to Lookahead(k) candidates in index order, without the empty
// slots an index reports when it holds fewer vectors than requested.
func (s *Searcher) Search(ctx context.Context, idx vector.Index, query []float32, k int) ([]vector.VectorResult, error) {
	if len(query) != idx.Dimensions() {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), idx.Dimensions())
	}
	raw, err := idx.Search(ctx, query, s.Lookahead(k))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	out := raw[:0:0]
	for _, r := range raw {
		if r.RowID < 0 {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
