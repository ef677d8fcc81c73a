package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestCache_GetSet(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewCache(c)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "emb:hash:8:missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "emb:hash:8:k", []byte("[0.1,0.2]"), time.Minute))
	val, ok, err := cache.Get(ctx, "emb:hash:8:k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[0.1,0.2]", string(val))

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "emb:hash:8:k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ServerDownIsError(t *testing.T) {
	c, mr := newTestClient(t)
	cache := NewCache(c)
	mr.Close()

	_, ok, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRateLimiter_Allow(t *testing.T) {
	c, _ := newTestClient(t)
	l := NewRateLimiter(c)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	key := BuildRateLimitKey("u1", "POST /v1/search")

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key, 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := l.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// 窗口滑过后恢复
	now = now.Add(1500 * time.Millisecond)
	ok, err = l.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, BuildRateLimitKey("u2", "POST /v1/search"), 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHealthCheck(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, c.HealthCheck(context.Background()))
	mr.Close()
	assert.Error(t, c.HealthCheck(context.Background()))
}
