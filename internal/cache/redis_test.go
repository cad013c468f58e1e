// SPDX-License-Identifier: MIT
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

func setupRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)

	rc, ok := c.(*RedisCache)
	require.True(t, ok)
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisCacheSetGet(t *testing.T) {
	_, c := setupRedisCache(t)

	c.Set("summary:abc", "We build Go services.", time.Minute)

	val, ok := c.Get("summary:abc")
	require.True(t, ok)
	assert.Equal(t, "We build Go services.", val)
}

func TestRedisCacheGetMissing(t *testing.T) {
	_, c := setupRedisCache(t)

	_, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestRedisCacheTTL(t *testing.T) {
	mr, c := setupRedisCache(t)

	c.Set("shortlived", "value", 10*time.Second)

	_, ok := c.Get("shortlived")
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	_, ok = c.Get("shortlived")
	assert.False(t, ok)
}

func TestRedisCacheDelete(t *testing.T) {
	_, c := setupRedisCache(t)

	c.Set("key", "value", time.Minute)
	c.Delete("key")

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestRedisCacheClear(t *testing.T) {
	_, c := setupRedisCache(t)

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	c.Clear()

	assert.Zero(t, c.Stats().CurrentSize)
}

func TestRedisCacheJSONRoundTrip(t *testing.T) {
	_, c := setupRedisCache(t)

	c.Set("listing", map[string]any{"title": "Go Developer", "score": 0.8}, time.Minute)

	val, ok := c.Get("listing")
	require.True(t, ok)

	decoded, ok := val.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Go Developer", decoded["title"])
	assert.Equal(t, 0.8, decoded["score"])
}

func TestRedisCacheStats(t *testing.T) {
	_, c := setupRedisCache(t)

	c.Set("a", "1", time.Minute)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestRedisCacheHealthCheck(t *testing.T) {
	mr, c := setupRedisCache(t)

	require.NoError(t, c.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}
