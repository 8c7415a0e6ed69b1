// Package authcache implements the cache the auth-gateway plugin uses to
// avoid calling an external auth service on every request (§4.8). It keys on
// (apiKey, method, path) and fails closed: any cache error is treated as a
// cache miss, never as a free pass.
package authcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Result is what got cached for a given key: whether the request was
// authorized, and — on success — the identity the auth service resolved.
type Result struct {
	Authorized bool
	UserID     string
	KeyID      string
	KeyName    string
	UserEmail  string
	Reason     string
}

// Key builds the cache key the auth-gateway plugin uses: the bearer token
// plus the method/path pair, since the same key can be authorized for some
// routes and not others.
func Key(apiKey, method, path string) string {
	return apiKey + "\x00" + method + "\x00" + path
}

// Cache is satisfied by the in-memory LRU below and by the Redis-backed
// second level in redis.go, so auth-gateway can be configured with either
// without changing its plugin code.
type Cache interface {
	Get(key string) (Result, bool)
	Set(key string, result Result, ttl time.Duration)
}

// LRU is an expirable, size-bounded in-memory cache — the default backend,
// suitable for a single-instance deployment.
type LRU struct {
	cache *lru.LRU[string, Result]
}

// NewLRU builds an LRU cache holding up to size entries, each expiring ttl
// after insertion.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{cache: lru.NewLRU[string, Result](size, nil, ttl)}
}

func (l *LRU) Get(key string) (Result, bool) {
	return l.cache.Get(key)
}

// Set stores result under key. The expirable LRU's TTL is fixed at
// construction (NewLRU), so the ttl argument here is accepted only to
// satisfy Cache and is otherwise ignored.
func (l *LRU) Set(key string, result Result, _ time.Duration) {
	l.cache.Add(key, result)
}
