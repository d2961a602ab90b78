package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/pulpit/internal/vector"
	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
)

// DefaultQueryInstruction is the instructor-style prefix used when the configured
// model expects one.
const DefaultQueryInstruction = "Represent the meaning of this sentence for semantic search: "

// QueryEmbedder embeds search queries for one index metric. It is safe for
// concurrent use as long as the underlying provider is.
type QueryEmbedder struct {
	provider    Embedder
	name        string
	instruction string
	metric      vector.Metric
	logger      *zap.Logger
}

// QueryOption configures a QueryEmbedder.
type QueryOption func(*QueryEmbedder)

// WithInstruction sets the text prepended to every query before encoding.
func WithInstruction(instruction string) QueryOption {
	return func(q *QueryEmbedder) {
		q.instruction = instruction
	}
}

// WithProviderName sets the provider name reported in errors and logs.
func WithProviderName(name string) QueryOption {
	return func(q *QueryEmbedder) {
		q.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) QueryOption {
	return func(q *QueryEmbedder) {
		q.logger = utils.OrNop(logger)
	}
}

// NewQueryEmbedder wraps provider for queries against indexes built with metric.
func NewQueryEmbedder(provider Embedder, metric vector.Metric, opts ...QueryOption) *QueryEmbedder {
	q := &QueryEmbedder{
		provider: provider,
		name:     "embedder",
		metric:   metric,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Embed returns the query vector for text. Inner-product queries come back with
// unit length. Any provider failure or unusable output is a *ProviderError.
func (q *QueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := q.provider.Embed(ctx, q.instruction+text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		q.logger.Warn("embedding failed", zap.String("provider", q.name), zap.Int("items", 1), zap.Error(err))
		return nil, &ProviderError{Provider: q.name, Items: 1, RateLimited: isRateLimited(err), Err: err}
	}
	vec, err := q.check(raw)
	if err != nil {
		q.logger.Warn("embedding rejected", zap.String("provider", q.name), zap.Int("items", 1), zap.Error(err))
		return nil, &ProviderError{Provider: q.name, Items: 1, Err: err}
	}
	return vec, nil
}

func (q *QueryEmbedder) check(raw []float32) ([]float32, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if want := q.provider.Dimensions(); want > 0 && len(raw) != want {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(raw), want)
	}
	if !utils.AllFinite(raw) {
		return nil, ErrNonFiniteValue
	}
	// Providers may hand out cached slices.
	vec := make([]float32, len(raw))
	copy(vec, raw)
	if q.metric.NormalizesQuery() && !utils.NormalizeL2(vec) {
		return nil, ErrZeroVector
	}
	return vec, nil
}

// Dimensions returns the provider's output dimension.
func (q *QueryEmbedder) Dimensions() int {
	return q.provider.Dimensions()
}

// Metric returns the metric queries are prepared for.
func (q *QueryEmbedder) Metric() vector.Metric {
	return q.metric
}

// Provider returns the provider name.
func (q *QueryEmbedder) Provider() string {
	return q.name
}
