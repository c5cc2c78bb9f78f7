// Package cache is the gateway that shields expensive external lookups
// behind a deterministic key scheme with TTL expiry. Every call site is
// check-then-compute-then-store, and an unavailable backing store always
// degrades to "recompute", never to a hard failure of the calling phase.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by backends when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Backend is the raw key-value contract the gateway runs against. The
// gateway owns degradation: backends surface their real errors and the
// gateway turns them into misses and no-op writes.
type Backend interface {
	// Get returns the stored bytes, or ErrMiss when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL. A write to an
	// existing key overwrites it and resets the expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteMatching removes all keys matching a glob pattern and
	// returns how many were removed.
	DeleteMatching(ctx context.Context, pattern string) (int, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
