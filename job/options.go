package job

import "time"

// Options configures per-kind behavior such as attempts, queue, and timeout.
type Options struct {
	// MaxAttempts is the total execution attempt budget, counting the
	// first run. Zero falls back to the engine default.
	MaxAttempts int

	// Queue is the queue this kind is submitted to. The queue also
	// selects the retry delay policy.
	Queue string

	// Timeout bounds a single execution attempt. Zero means no limit.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Queue:       "analysis",
		Timeout:     10 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxAttempts sets the total execution attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithQueue sets the queue name for the kind.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithTimeout sets the maximum duration of a single execution attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
