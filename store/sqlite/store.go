// Package sqlite implements store.Store on SQLite via the pure-Go
// modernc.org/sqlite driver. Suited to single-host deployments and
// development setups that need durability without an external service.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/nmang004/projectaether/store"
)

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements store.Store backed by a SQLite database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at path and returns a Store. Use
// ":memory:" for an ephemeral database. The Store owns the connection and
// closes it on Close.
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("aether/sqlite: open: %w", err)
	}

	// WAL lets concurrent readers proceed while the single writer holds
	// the write lock.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("aether/sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("aether/sqlite: busy timeout: %w", err)
	}

	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the schema. Idempotent.
func (s *Store) Migrate(_ context.Context) error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("aether/sqlite: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
