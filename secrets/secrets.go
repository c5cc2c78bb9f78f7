// Package secrets loads service credentials once per process. A fetch
// failure is reported to every caller instead of crashing the process,
// so a misconfigured credential degrades the features that need it and
// nothing else.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Source fetches a named secret.
type Source interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// ── environment source ──────────────────────────────────────────────────

// Env reads secrets from environment variables, optionally under a
// prefix.
type Env struct {
	// Prefix is prepended to every name, e.g. "AETHER_".
	Prefix string
}

var _ Source = (*Env)(nil)

// Fetch implements Source.
func (e *Env) Fetch(_ context.Context, name string) (string, error) {
	key := e.Prefix + name
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("secret %q not set in environment", key)
	}
	return v, nil
}

// ── file source ─────────────────────────────────────────────────────────

// File reads secrets from files under a directory, one file per secret.
// This is the layout container secret mounts use.
type File struct {
	Dir string
}

var _ Source = (*File)(nil)

// Fetch implements Source.
func (f *File) Fetch(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(f.Dir + "/" + name)
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", name, err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("secret %q is empty", name)
	}
	return v, nil
}

// ── cached wrapper ──────────────────────────────────────────────────────

// Cached wraps a Source and resolves each secret at most once per
// process. The first outcome, value or error, is what every later call
// sees.
type Cached struct {
	source Source

	mu      sync.Mutex
	entries map[string]*cachedEntry
}

type cachedEntry struct {
	once  sync.Once
	value string
	err   error
}

// NewCached wraps source with per-name single-flight caching.
func NewCached(source Source) *Cached {
	return &Cached{
		source:  source,
		entries: make(map[string]*cachedEntry),
	}
}

var _ Source = (*Cached)(nil)

// Fetch implements Source.
func (c *Cached) Fetch(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		e = &cachedEntry{}
		c.entries[name] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = c.source.Fetch(ctx, name)
	})
	return e.value, e.err
}
