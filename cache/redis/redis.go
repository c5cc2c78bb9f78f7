// Package redis implements cache.Backend on Redis. Entries are plain
// string keys with server-side TTL; invalidation walks the keyspace with
// SCAN so large patterns never block the server the way KEYS would.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	backend := rediscache.New(client)
//	gw := cache.New(backend)
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nmang004/projectaether/cache"
)

// Compile-time interface check.
var _ cache.Backend = (*Backend)(nil)

// keyPrefix namespaces all gateway entries in a shared Redis.
const keyPrefix = "aether:cache:"

// scanBatch is the COUNT hint per SCAN page.
const scanBatch = 256

// Backend is a Redis-backed cache store. The caller owns the client
// lifecycle.
type Backend struct {
	client goredis.Cmdable
}

// New creates a Redis cache backend.
func New(client goredis.Cmdable) *Backend {
	return &Backend{client: client}
}

// Get returns the stored bytes, or cache.ErrMiss when absent. Redis owns
// expiry, so an expired key is simply absent.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("aether/rediscache: get: %w", err)
	}
	return data, nil
}

// Set stores value under key with a server-side TTL.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("aether/rediscache: set: %w", err)
	}
	return nil
}

// DeleteMatching removes all keys matching the glob pattern via SCAN.
func (b *Backend) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, keyPrefix+pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("aether/rediscache: scan: %w", err)
		}
		if len(keys) > 0 {
			n, delErr := b.client.Del(ctx, keys...).Result()
			if delErr != nil {
				return removed, fmt.Errorf("aether/rediscache: del: %w", delErr)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Ping verifies the Redis connection is alive.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
