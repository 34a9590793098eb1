package redis

import (
	"context"
	"testing"
	"time"

	"referralstats/internal/config"
	"referralstats/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDedupeConfig(prefix string, ttl time.Duration) *config.DedupeConfig {
	return &config.DedupeConfig{
		Prefix: prefix,
		TTL:    ttl,
	}
}

// ========== Constructor Tests ==========

func TestNewRedisDeduper(t *testing.T) {
	_, client := setupTestRedis(t)
	log := testutil.Logger()

	d, err := NewRedisDeduper(log, createTestDedupeConfig("test:dedupe:", time.Hour), client, nil)
	require.NoError(t, err)
	assert.Equal(t, "test:dedupe:", d.prefix)
	assert.Equal(t, time.Hour, d.ttl)
	assert.Nil(t, d.bloom)

	d, err = NewRedisDeduper(log, createTestDedupeConfig("", time.Hour), client, nil)
	require.NoError(t, err)
	assert.Equal(t, "dedupe:", d.prefix)

	_, err = NewRedisDeduper(log, nil, client, nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewRedisDeduper(log, createTestDedupeConfig("", 0), nil, nil)
	assert.ErrorContains(t, err, "redis client is required")
}

// ========== Contains / Add ==========

func TestRedisDedupe_AddThenContains(t *testing.T) {
	mr, client := setupTestRedis(t)

	d, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Hour), client, nil)
	require.NoError(t, err)

	ctx := context.Background()
	const id = "0xabc:3"

	seen, err := d.Contains(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)
	assert.False(t, mr.Exists("test:dedupe:"+id), "Contains must not write")

	require.NoError(t, d.Add(ctx, id))

	seen, err = d.Contains(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl := mr.TTL("test:dedupe:" + id)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	// expire through miniredis' clock
	mr.FastForward(2 * time.Hour)
	seen, err = d.Contains(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedupe_ZeroTTLKeepsForever(t *testing.T) {
	mr, client := setupTestRedis(t)

	d, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("p:", 0), client, nil)
	require.NoError(t, err)

	require.NoError(t, d.Add(context.Background(), "0x1:0"))
	assert.Equal(t, time.Duration(0), mr.TTL("p:0x1:0"))
}

func TestRedisDedupe_PrefixIsolation(t *testing.T) {
	_, client := setupTestRedis(t)
	log := testutil.Logger()

	d1, err := NewRedisDeduper(log, createTestDedupeConfig("dedupe:a:", time.Hour), client, nil)
	require.NoError(t, err)
	d2, err := NewRedisDeduper(log, createTestDedupeConfig("dedupe:b:", time.Hour), client, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d1.Add(ctx, "shared"))

	seen, err := d2.Contains(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, seen, "different prefix should have separate deduplication")
}

// Without RedisBloom every bloom call errors, so the deduper must still answer from the key.
func TestRedisDedupe_BloomErrorsFallBackToKey(t *testing.T) {
	_, client := setupTestRedis(t)

	bloom, err := NewBloom(createTestBloomConfig("test:bf", 1000, 0.01), client)
	require.NoError(t, err)

	d, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Hour), client, bloom)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, d.Add(ctx, "0xfeed:1"))

	seen, err := d.Contains(ctx, "0xfeed:1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.Contains(ctx, "0xfeed:2")
	require.NoError(t, err)
	assert.False(t, seen)
}

// ========== Redis Failure Tests ==========

func TestRedisDedupe_RedisFailure(t *testing.T) {
	mr, client := setupTestRedis(t)

	d, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Hour), client, nil)
	require.NoError(t, err)

	mr.Close()

	ctx := context.Background()
	seen, err := d.Contains(ctx, "event-fail")
	assert.False(t, seen)
	assert.ErrorContains(t, err, "redis Exists error")

	assert.ErrorContains(t, d.Add(ctx, "event-fail"), "redis Set error")
}

func TestRedisDedupe_ContextCancellation(t *testing.T) {
	_, client := setupTestRedis(t)

	d, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("test:dedupe:", time.Hour), client, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seen, err := d.Contains(ctx, "event-cancelled")
	assert.Error(t, err)
	assert.False(t, seen)
}

func TestRedisDedupe_Health(t *testing.T) {
	mr, client := setupTestRedis(t)

	d, err := NewRedisDeduper(testutil.Logger(), createTestDedupeConfig("h:", time.Minute), client, nil)
	require.NoError(t, err)
	assert.NoError(t, d.Health(context.Background()))

	mr.Close()
	assert.Error(t, d.Health(context.Background()))
}
