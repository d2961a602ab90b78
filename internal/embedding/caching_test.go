package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	*MockEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.MockEmbedder.Embed(ctx, text)
}

func TestCachingEmbedder_LocalHit(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	c := NewCachingEmbedder(inner, "mock", 8, nil, nil)
	ctx := context.Background()

	a, err := c.Embed(ctx, "mercy")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "mercy")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingEmbedder_SharedCache(t *testing.T) {
	shared := NewRedisCache(newFakeRedis(), "t:", 0)
	ctx := context.Background()

	first := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	_, err := NewCachingEmbedder(first, "mock", 8, shared, nil).Embed(ctx, "mercy")
	require.NoError(t, err)

	// A second instance with a cold local cache reads from the shared cache.
	second := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	_, err = NewCachingEmbedder(second, "mock", 8, shared, nil).Embed(ctx, "mercy")
	require.NoError(t, err)
	assert.Equal(t, 0, second.calls)

	// A different model name is a different key.
	third := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	_, err = NewCachingEmbedder(third, "other", 8, shared, nil).Embed(ctx, "mercy")
	require.NoError(t, err)
	assert.Equal(t, 1, third.calls)
}

func TestCachingEmbedder_SharedFailureFallsThrough(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("down")
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	c := NewCachingEmbedder(inner, "mock", 8, NewRedisCache(fake, "", 0), nil)

	vec, err := c.Embed(context.Background(), "mercy")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingEmbedder_ErrorsNotCached(t *testing.T) {
	stub := &stubEmbedder{err: errors.New("boom"), dims: 2}
	c := NewCachingEmbedder(stub, "stub", 8, nil, nil)

	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	stub.err = nil
	stub.vec = []float32{1, 2}
	vec, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}
