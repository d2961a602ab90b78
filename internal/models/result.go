package models

// ScoredResult is a single retrieval hit: the chunk record (nullable fields when the
// metadata store has no row for the chunk) plus the raw similarity score.
type ScoredResult struct {
	ChunkRecord
	Score float64 `json:"score"`
}

// QueryResponse is the response for a query request. Results are ordered best first
// for Metric: descending score for inner product, ascending for euclidean distance.
type QueryResponse struct {
	QueryID    string          `json:"query_id,omitempty"`
	Metric     string          `json:"metric"`
	PastorSlug string          `json:"pastor_slug"`
	K          int             `json:"k"`
	Results    []*ScoredResult `json:"results"`
	// DroppedUnmapped counts search candidates whose row id had no id-mapping entry.
	DroppedUnmapped int `json:"dropped_unmapped"`
	// MissingMetadata counts results returned without a metadata row.
	MissingMetadata int   `json:"missing_metadata"`
	QueryTime       int64 `json:"query_time_ms"`
}

// ChunkIDs returns the chunk ids of the results in order.
func (r *QueryResponse) ChunkIDs() []string {
	ids := make([]string, len(r.Results))
	for i, res := range r.Results {
		ids[i] = res.ChunkID
	}
	return ids
}
