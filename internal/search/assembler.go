package search

import (
	"context"
	"errors"
	"sort"

	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/storage"
	"github.com/hyperjump/pulpit/internal/vector"
)

// RowMapper maps index row ids to chunk ids.
type RowMapper interface {
	Lookup(row int64) (string, bool)
}

// Assembly is the outcome of turning candidates into results.
type Assembly struct {
	Results []*models.ScoredResult
	// DroppedUnmapped counts candidates whose row id had no mapping.
	DroppedUnmapped int
	// MissingMetadata counts returned results without a metadata row.
	MissingMetadata int
}

// Assemble maps candidates to chunk ids, attaches metadata from one batched store
// lookup, orders them best first for metric and keeps the first k. Unmapped rows
// are dropped; chunks without a metadata row are kept with empty fields. A store
// failure fails the whole call.
func Assemble(ctx context.Context, candidates []vector.VectorResult, ids RowMapper, store storage.ChunkStore, metric vector.Metric, k int) (*Assembly, error) {
	asm := &Assembly{Results: []*models.ScoredResult{}}

	type hit struct {
		chunkID string
		score   float64
	}
	hits := make([]hit, 0, len(candidates))
	chunkIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		chunkID, ok := ids.Lookup(c.RowID)
		if !ok {
			asm.DroppedUnmapped++
			continue
		}
		hits = append(hits, hit{chunkID: chunkID, score: c.Score})
		chunkIDs = append(chunkIDs, chunkID)
	}
	if len(hits) == 0 {
		return asm, nil
	}

	records, err := store.GetChunksByIDs(ctx, chunkIDs)
	if err != nil {
		var serr *storage.StoreError
		if !errors.As(err, &serr) {
			err = &storage.StoreError{Driver: store.Driver(), Op: "get chunks", Err: err}
		}
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return metric.Before(hits[i].score, hits[j].score)
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	for _, h := range hits {
		result := &models.ScoredResult{Score: h.score}
		if rec, ok := records[h.chunkID]; ok && rec != nil {
			result.ChunkRecord = *rec
			result.ChunkID = h.chunkID
		} else {
			result.ChunkID = h.chunkID
			asm.MissingMetadata++
		}
		asm.Results = append(asm.Results, result)
	}
	return asm, nil
}
