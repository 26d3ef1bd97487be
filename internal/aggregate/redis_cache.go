package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

const aggregateKeyPrefix = "agg:"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisCache shares rollups between service instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]kitchen.Aggregate, bool, error) {
	raw, err := r.client.Get(ctx, aggregateKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var aggs []kitchen.Aggregate
	if err := json.Unmarshal(raw, &aggs); err != nil {
		return nil, false, fmt.Errorf("decode cached aggregates: %w", err)
	}
	return aggs, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, aggs []kitchen.Aggregate, ttl time.Duration) error {
	raw, err := json.Marshal(aggs)
	if err != nil {
		return fmt.Errorf("encode aggregates: %w", err)
	}
	return r.client.Set(ctx, aggregateKeyPrefix+key, raw, ttl).Err()
}
