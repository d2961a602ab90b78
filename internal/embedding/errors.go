package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Sentinel causes carried inside ProviderError.
var (
	ErrEmptyEmbedding    = errors.New("provider returned an empty embedding")
	ErrNonFiniteValue    = errors.New("embedding contains NaN or Inf")
	ErrZeroVector        = errors.New("embedding has zero norm")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ProviderError reports that the embedding provider failed or produced an unusable
// vector. It is never retried.
type ProviderError struct {
	Provider    string
	Items       int
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("embedding provider %s failed for %d item(s)", e.Provider, e.Items)
	if e.RateLimited {
		msg += " (rate limited)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the provider call ran out of time.
func (e *ProviderError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
