package job

import (
	"context"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// Status filters by job status. Empty means all statuses.
	Status Status
}

// Store is the persistence contract for the progress/result store.
//
// The store serializes writes per job ID while allowing concurrent
// readers; reads always reflect the most recent completed write. Terminal
// transitions are write-once: CompleteJob and FailJob return
// aether.ErrJobFinalized once a job is terminal, and UpdateProgress
// returns aether.ErrJobNotRunning. Progress never decreases; the store
// clamps any lower value to the recorded maximum.
type Store interface {
	// CreateJob persists a new job in pending state. It returns
	// aether.ErrJobAlreadyExists if the ID is taken. If CreateJob fails,
	// no record exists and the submission must be reported as an error.
	CreateJob(ctx context.Context, j *Job) error

	// ClaimJobs atomically claims up to limit pending jobs from the given
	// queues, marks them running, stamps StartedAt and the claiming
	// worker, and returns them in submission order.
	ClaimJobs(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*Job, error)

	// GetJob returns a snapshot of a job. Unknown or expired IDs return
	// aether.ErrJobNotFound, never an empty record.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateProgress records a phase-boundary envelope for a running job.
	UpdateProgress(ctx context.Context, jobID id.JobID, p ProgressUpdate) error

	// SetAttempt records the attempt counter for a running job.
	SetAttempt(ctx context.Context, jobID id.JobID, attempt int) error

	// CompleteJob transitions a running job to succeeded and records the
	// result payload. Progress becomes 100.
	CompleteJob(ctx context.Context, jobID id.JobID, result []byte) error

	// FailJob transitions a job to failed and records the structured
	// error.
	FailJob(ctx context.Context, jobID id.JobID, jobErr *aether.Error) error

	// ListJobs returns jobs matching the given status.
	ListJobs(ctx context.Context, status Status, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PruneFinished removes terminal jobs older than the retention window
	// and returns how many were reclaimed. Pruned IDs read as not found.
	PruneFinished(ctx context.Context, retention time.Duration) (int, error)
}
