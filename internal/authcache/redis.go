package authcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the optional second-level backend for deployments running
// more than one gateway instance, where an in-memory LRU per process would
// let one instance auth a request another still treats as uncached. It
// implements the same Cache interface as LRU so auth-gateway's config just
// names a backend, not a code path.
type RedisCache struct {
	client redis.UniversalClient
	ctx    context.Context
	prefix string
	ttl    time.Duration
}

// NewRedisCache wraps an existing client (production code passes
// redis.NewClient; tests pass a miniredis-backed one).
func NewRedisCache(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "llmrouter:authcache"
	}
	return &RedisCache{client: client, ctx: context.Background(), prefix: keyPrefix, ttl: ttl}
}

func (c *RedisCache) redisKey(key string) string {
	return c.prefix + ":" + key
}

// Get fails closed: any error from Redis (including a severed connection)
// is reported as a cache miss, never mistaken for a cached authorization.
func (c *RedisCache) Get(key string) (Result, bool) {
	val, err := c.client.Get(c.ctx, c.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return Result{}, false
	}
	return res, true
}

func (c *RedisCache) Set(key string, result Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.client.Set(c.ctx, c.redisKey(key), payload, ttl)
}
