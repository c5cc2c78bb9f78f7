// Package job defines the job record, its lifecycle states, the progress
// envelope published at phase boundaries, and the persistence contract for
// the progress/result store.
package job

import (
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
)

// Status represents the lifecycle state of a job.
//
// Transitions are monotonic: pending → running → {succeeded, failed}.
// A terminal status is write-once; the store rejects any later mutation.
type Status string

const (
	// StatusPending means the job is waiting to be picked up by a worker.
	StatusPending Status = "pending"
	// StatusRunning means a worker is currently executing the job.
	StatusRunning Status = "running"
	// StatusSucceeded means the job finished and its result is recorded.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the job failed and will not run again.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is succeeded or failed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one submitted unit of asynchronous work, tracked by ID through its
// lifecycle. The store is the sole owner of Job records; the executor
// running a job is the only writer.
type Job struct {
	aether.Entity

	ID      id.JobID `json:"id"`
	Kind    string   `json:"kind"`
	Queue   string   `json:"queue"`
	Payload []byte   `json:"payload"`
	Status  Status   `json:"status"`

	// Phase labels the current stage of multi-stage work. Meaningful only
	// while Status is running.
	Phase string `json:"phase,omitempty"`

	// Progress is a 0-100 percentage, non-decreasing over the job's
	// lifetime. It reaches 100 only on success.
	Progress int `json:"progress"`

	// Total and Completed are optional work counters, such as pages
	// discovered versus pages processed.
	Total     int `json:"total,omitempty"`
	Completed int `json:"completed,omitempty"`

	// CurrentItem names the item being processed, such as the URL the
	// crawler is currently on.
	CurrentItem string `json:"current_item,omitempty"`

	// Result is the opaque success payload, set exactly once on the
	// transition to succeeded.
	Result []byte `json:"result,omitempty"`

	// Error is the structured failure, set exactly once on the transition
	// to failed.
	Error *aether.Error `json:"error,omitempty"`

	// Attempt counts execution attempts, starting at 1 for the first run.
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"max_attempts"`

	WorkerID   id.WorkerID `json:"worker_id,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`

	// Timeout bounds a single execution attempt. Zero means no limit.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Terminal reports whether the job has reached a terminal status.
func (j *Job) Terminal() bool { return j.Status.Terminal() }

// Clone returns a deep copy. Stores hand out clones so readers never
// observe an in-flight write.
func (j *Job) Clone() *Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append([]byte(nil), j.Payload...)
	}
	if j.Result != nil {
		c.Result = append([]byte(nil), j.Result...)
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// ProgressUpdate is the structured envelope published at every phase
// boundary, so a concurrent status query observes live progress rather
// than just the terminal outcome.
type ProgressUpdate struct {
	Phase       string `json:"phase"`
	Percent     int    `json:"progress"`
	Total       int    `json:"total,omitempty"`
	Completed   int    `json:"completed,omitempty"`
	CurrentItem string `json:"current_item,omitempty"`
}
