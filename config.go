package aether

import "time"

// Queue names for the three audit job families. The queue a job lands on
// determines its retry delay policy.
const (
	QueueCrawl    = "crawl"
	QueueAnalysis = "analysis"
	QueueContent  = "content"
)

// Config holds configuration for the Dispatcher.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently.
	// Each job occupies one worker for its full lifetime.
	Concurrency int

	// Queues is the list of queues this dispatcher will poll.
	Queues []string

	// PollInterval is how often idle workers poll for new jobs.
	PollInterval time.Duration

	// MaxAttempts is the default execution attempt budget per job.
	MaxAttempts int

	// Retention is how long terminal jobs stay readable before the store
	// reclaims them. After reclamation their ID reads as not found.
	Retention time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		Queues:          []string{QueueCrawl, QueueAnalysis, QueueContent},
		PollInterval:    250 * time.Millisecond,
		MaxAttempts:     3,
		Retention:       time.Hour,
		ShutdownTimeout: 30 * time.Second,
	}
}
