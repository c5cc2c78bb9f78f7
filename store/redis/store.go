// Package redis implements store.Store on Redis for deployments where the
// API and workers run as separate processes. Jobs are stored as Hashes,
// each queue is a Sorted Set scored by submission time, and a Set tracks
// all job IDs for enumeration.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nmang004/projectaether/store"
)

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRetention sets a TTL applied to job hashes on the transition to a
// terminal status, so finished records expire server-side even if the
// prune sweep never runs. Zero disables the TTL.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// Store implements store.Store backed by Redis.
//
// Writes assume the job.Store single-writer contract: one executor owns a
// running job, so read-check-write sequences on a job hash do not race.
type Store struct {
	client    redis.Cmdable
	logger    *slog.Logger
	retention time.Duration
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
