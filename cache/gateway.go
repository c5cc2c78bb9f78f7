package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL is the expiry applied when a call site does not choose one.
// External lookup results are considered fresh for a day.
const DefaultTTL = 24 * time.Hour

// Key derives a cache key from a logical operation name and its parameter
// set. Parameters are serialized in sorted order, so the same lookup with
// the same parameters always maps to the same key regardless of the order
// they were supplied in. The sorted serialization is pushed through
// SHA-256 so keys have bounded, predictable length no matter how large
// the inputs are.
func Key(op string, params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(op + ":" + strings.Join(pairs, ":")))
	return op + ":" + hex.EncodeToString(sum[:])
}

// Stats counts gateway traffic since construction.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
	Writes int64 `json:"writes"`
}

// Gateway wraps a Backend with deterministic keys, msgpack value encoding,
// and degradation semantics: backend failures read as misses and write as
// no-ops, logged but never raised to the caller.
type Gateway struct {
	backend Backend
	logger  *slog.Logger
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
	writes atomic.Int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger the gateway reports degradation on.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithDefaultTTL sets the expiry used when Set is called with a zero TTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(g *Gateway) { g.ttl = ttl }
}

// New creates a Gateway over the given backend.
func New(backend Backend, opts ...Option) *Gateway {
	g := &Gateway{
		backend: backend,
		logger:  slog.Default(),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Get decodes the value stored under key into out and reports whether it
// was present. Backend failures and undecodable entries are misses.
func (g *Gateway) Get(ctx context.Context, key string, out any) bool {
	data, err := g.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			g.misses.Add(1)
			return false
		}
		g.errs.Add(1)
		g.logger.Warn("cache get degraded to miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := msgpack.Unmarshal(data, out); err != nil {
		g.errs.Add(1)
		g.logger.Warn("cache entry undecodable, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}

	g.hits.Add(1)
	return true
}

// Set stores value under key, best-effort. A zero ttl uses the gateway
// default. Failures are logged and swallowed; callers must tolerate
// values that did not stick.
func (g *Gateway) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = g.ttl
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		g.errs.Add(1)
		g.logger.Warn("cache set skipped, value not encodable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := g.backend.Set(ctx, key, data, ttl); err != nil {
		g.errs.Add(1)
		g.logger.Warn("cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	g.writes.Add(1)
}

// Invalidate removes all entries whose key matches the glob pattern and
// returns how many were removed. Returns 0 when the backing store is
// unavailable.
func (g *Gateway) Invalidate(ctx context.Context, pattern string) int {
	n, err := g.backend.DeleteMatching(ctx, pattern)
	if err != nil {
		g.errs.Add(1)
		g.logger.Warn("cache invalidate failed",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return 0
	}
	g.logger.Info("cache invalidated",
		slog.String("pattern", pattern),
		slog.Int("removed", n),
	)
	return n
}

// Ping reports whether the backing store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.backend.Ping(ctx)
}

// Stats returns traffic counters since construction.
func (g *Gateway) Stats() Stats {
	return Stats{
		Hits:   g.hits.Load(),
		Misses: g.misses.Load(),
		Errors: g.errs.Load(),
		Writes: g.writes.Load(),
	}
}

// Fetch is the check-then-compute-then-store pattern every lookup call
// site uses: return the cached value for (op, params) if present,
// otherwise invoke compute, cache its result best-effort, and return it.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Fetch[T any](
	ctx context.Context,
	g *Gateway,
	op string,
	params map[string]string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	key := Key(op, params)

	var cached T
	if g.Get(ctx, key, &cached) {
		return cached, nil
	}

	fresh, err := compute(ctx)
	if err != nil {
		return fresh, err
	}

	g.Set(ctx, key, fresh, ttl)
	return fresh, nil
}
