// Package cache provides a Redis-backed application.TokenCache.
package cache

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces token-hash keys away from any other use of the
// same Redis instance.
const keyPrefix = "meridian:token:"

// RedisCache is a write-through cache in front of the token store. A
// miss or a Redis outage always falls through to the store — this cache
// is an optimization, never a source of truth.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wires client with entries expiring after ttl (0 means
// no expiry: an entry then stays until Invalidate removes it).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(hash []byte) string { return keyPrefix + hex.EncodeToString(hash) }

// Get reports the cached username for hash, if any. Any Redis error is
// treated as a miss so callers always fall back to the store.
func (c *RedisCache) Get(ctx context.Context, hash []byte) (string, bool) {
	username, err := c.client.Get(ctx, key(hash)).Result()
	if err != nil {
		return "", false
	}
	return username, true
}

// Set caches username for hash.
func (c *RedisCache) Set(ctx context.Context, hash []byte, username string) {
	c.client.Set(ctx, key(hash), username, c.ttl)
}

// Invalidate removes hash's cache entry. Service.RemoveToken does not
// call it, since it only has the token's id, not its hash.
func (c *RedisCache) Invalidate(ctx context.Context, hash []byte) {
	c.client.Del(ctx, key(hash))
}
