package embedding

import (
	"context"

	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
)

// VectorCache is a shared, out-of-process embedding cache.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// CachingEmbedder puts an in-process LRU and an optional shared cache in front of
// another Embedder. Cache keys include the model name so that switching models
// never serves stale vectors.
type CachingEmbedder struct {
	next   Embedder
	model  string
	local  *EmbeddingCache
	shared VectorCache
	logger *zap.Logger
}

// NewCachingEmbedder wraps next. shared may be nil.
func NewCachingEmbedder(next Embedder, model string, capacity int, shared VectorCache, logger *zap.Logger) *CachingEmbedder {
	return &CachingEmbedder{
		next:   next,
		model:  model,
		local:  NewEmbeddingCache(capacity),
		shared: shared,
		logger: utils.OrNop(logger),
	}
}

// Embed returns the cached vector for text or computes and caches it.
// Shared cache failures are logged and otherwise ignored.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.model + "\x00" + text
	if vec, ok := c.local.Get(key); ok {
		return vec, nil
	}
	if c.shared != nil {
		vec, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			c.logger.Debug("shared embedding cache get failed", zap.Error(err))
		} else if ok && len(vec) == c.next.Dimensions() {
			c.local.Set(key, vec)
			return vec, nil
		}
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 || !utils.AllFinite(vec) {
		return vec, nil
	}
	c.local.Set(key, vec)
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, vec); err != nil {
			c.logger.Debug("shared embedding cache set failed", zap.Error(err))
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text through the cache.
func (c *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachingEmbedder) Dimensions() int {
	return c.next.Dimensions()
}

// Close closes the wrapped embedder.
func (c *CachingEmbedder) Close() error {
	return c.next.Close()
}
