package models

import (
	"fmt"
	"strings"
)

// QueryRequest is a retrieval request. The partition may be named by PastorSlug or by
// Index (the "vectordb-<slug>" form); k may be given as K or TopK.
type QueryRequest struct {
	Query      string `json:"query"`
	PastorSlug string `json:"pastor_slug,omitempty"`
	Index      string `json:"index,omitempty"`
	K          *int   `json:"k,omitempty"`
	TopK       *int   `json:"top_k,omitempty"`

	// Limit is the resolved k after Validate.
	Limit int `json:"-"`
}

// Partition returns the requested partition key, preferring PastorSlug over Index.
func (q *QueryRequest) Partition() string {
	if s := strings.TrimSpace(q.PastorSlug); s != "" {
		return s
	}
	return strings.TrimSpace(q.Index)
}

// Validate checks the query text and resolves Limit. An absent k uses defaultK;
// an explicit k <= 0 is an error; k above maxK is clamped to maxK.
func (q *QueryRequest) Validate(defaultK, maxK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	k := defaultK
	switch {
	case q.K != nil:
		k = *q.K
	case q.TopK != nil:
		k = *q.TopK
	}
	if k <= 0 {
		return fmt.Errorf("k must be a positive integer, got %d", k)
	}
	if maxK > 0 && k > maxK {
		k = maxK
	}
	q.Limit = k
	return nil
}
