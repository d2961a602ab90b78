package embedding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	fake := newFakeRedis()
	c := NewRedisCache(fake, "pulpit:emb:", time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "text")
	require.NoError(t, err)
	assert.False(t, ok)

	want := []float32{0.25, -1.5, 3}
	require.NoError(t, c.Set(ctx, "text", want))
	got, ok, err := c.Get(ctx, "text")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	for key, ttl := range fake.ttls {
		assert.True(t, strings.HasPrefix(key, "pulpit:emb:"))
		assert.NotContains(t, key, "text", "raw text must not appear in keys")
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestRedisCache_CorruptValue(t *testing.T) {
	fake := newFakeRedis()
	c := NewRedisCache(fake, "", 0)
	fake.data[c.key("k")] = "abc"

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Errors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	c := NewRedisCache(fake, "", 0)

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", []float32{1}))
}
