package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Kind is the unique identifier for this job type,
	// e.g. "audit.site_crawl".
	Kind string

	// Handler computes the job. It reports progress through rep at every
	// phase boundary and returns the opaque result payload.
	Handler func(ctx context.Context, payload T, rep Reporter) ([]byte, error)

	// Opts configures attempts, queue, and timeout.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](
	kind string,
	handler func(ctx context.Context, payload T, rep Reporter) ([]byte, error),
	opts ...Option,
) *Definition[T] {
	def := &Definition[T]{
		Kind:    kind,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
