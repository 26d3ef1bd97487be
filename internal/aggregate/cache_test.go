package aggregate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

func sampleAggregates() []kitchen.Aggregate {
	mean := 109.28
	return []kitchen.Aggregate{{
		Location:    beef.Location,
		Category:    beef.Category,
		BucketStart: monday,
		BucketEnd:   monday.AddDate(0, 0, 7),
		Count:       7,
		Sum:         decimal.NewFromInt(765),
		Mean:        &mean,
	}}
}

func TestMemoryCacheExpiresByTTL(t *testing.T) {
	c := NewMemoryCache()
	now := monday
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", sampleAggregates(), time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 1)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCache()
	now := monday
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", sampleAggregates(), time.Second))
	require.NoError(t, c.Set(ctx, "long", sampleAggregates(), time.Hour))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", sampleAggregates(), time.Minute))

	got, _, _ := c.Get(ctx, "k")
	got[0].Count = 0

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 7, again[0].Count)
}

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisCacheRoundTrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	c := NewRedisCache(client)
	key := "test-" + uuid.NewString()
	defer client.Del(ctx, aggregateKeyPrefix+key)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, sampleAggregates(), time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, decimal.NewFromInt(765).Equal(got[0].Sum))
	assert.True(t, monday.Equal(got[0].BucketStart))
	assert.Equal(t, 109.28, *got[0].Mean)

	ttl := client.TTL(ctx, aggregateKeyPrefix+key).Val()
	assert.Greater(t, ttl, time.Duration(0))
}
