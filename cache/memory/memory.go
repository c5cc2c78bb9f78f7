// Package memory implements cache.Backend with an in-process map.
// Intended for unit testing and single-node development.
package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/nmang004/projectaether/cache"
)

// Compile-time interface check.
var _ cache.Backend = (*Backend)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Backend is an in-memory cache backend. Safe for concurrent use.
// Expired entries are dropped lazily on read and during DeleteMatching.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]entry

	// now is overridable for expiry tests.
	now func() time.Time
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewWithClock returns a Backend using the given clock for expiry checks.
func NewWithClock(now func() time.Time) *Backend {
	b := New()
	b.now = now
	return b
}

// Get returns the stored bytes, or cache.ErrMiss when absent or expired.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return nil, cache.ErrMiss
	}
	if b.now().After(e.expiresAt) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return nil, cache.ErrMiss
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value under key. Overwrites reset the expiry.
func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	b.mu.Lock()
	b.entries[key] = entry{value: stored, expiresAt: b.now().Add(ttl)}
	b.mu.Unlock()
	return nil
}

// DeleteMatching removes all keys matching the glob pattern.
func (b *Backend) DeleteMatching(_ context.Context, pattern string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	now := b.now()
	for key, e := range b.entries {
		if now.After(e.expiresAt) {
			delete(b.entries, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok { //nolint:errcheck // pattern validated by caller
			delete(b.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds for the in-memory backend.
func (b *Backend) Ping(_ context.Context) error { return nil }

// Len returns the number of live entries.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
