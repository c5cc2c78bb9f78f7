// Package store defines the aggregate persistence contract. A full Store
// satisfies the job package's record contract plus the lifecycle
// operations the dispatcher needs. Backends live in the memory, redis,
// and sqlite subpackages.
package store

import (
	"context"

	"github.com/nmang004/projectaether/job"
)

// Store is the full persistence contract for a backend.
type Store interface {
	job.Store

	// Migrate prepares the backend schema. It must be idempotent.
	Migrate(ctx context.Context) error

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
