// Package cache stores serialized analysis results in Redis, keyed by the
// input fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"smc-lab/internal/smc"
)

const keyPrefix = "smc:result:"

// ResultCache reads and writes engine results.
type ResultCache interface {
	Get(ctx context.Context, fingerprint string) (*smc.Results, bool, error)
	Set(ctx context.Context, fingerprint string, res *smc.Results) error
}

// RedisCache is a ResultCache backed by go-redis.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache wraps client. ttl <= 0 stores entries without expiry.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Key returns the Redis key for a fingerprint.
func Key(fingerprint string) string {
	return keyPrefix + fingerprint
}

// Get returns the cached results. A miss is (nil, false, nil).
func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*smc.Results, bool, error) {
	data, err := c.client.Get(ctx, Key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var res smc.Results
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached results: %w", err)
	}
	return &res, true, nil
}

// Set stores res under fingerprint.
func (c *RedisCache) Set(ctx context.Context, fingerprint string, res *smc.Results) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, Key(fingerprint), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*smc.Results, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, *smc.Results) error         { return nil }

var (
	_ ResultCache = (*RedisCache)(nil)
	_ ResultCache = NopCache{}
)
