// Package memory provides a fully in-memory store. Safe for concurrent
// access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
	"github.com/nmang004/projectaether/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
//
// A single mutex serializes all writes, which gives the per-job write
// ordering the job.Store contract requires. Readers always receive deep
// copies, never pointers into the store's own records.
type Store struct {
	mu sync.RWMutex

	jobs map[string]*job.Job

	// seq records submission order so ClaimJobs is FIFO within a queue.
	seq     map[string]uint64
	nextSeq uint64

	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
		seq:  make(map[string]uint64),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds while the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return aether.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job in pending state.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return aether.ErrStoreClosed
	}
	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return aether.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	m.seq[key] = m.nextSeq
	m.nextSeq++
	return nil
}

// ClaimJobs atomically claims up to limit pending jobs from the given
// queues, marks them running, and returns them in submission order.
func (m *Store) ClaimJobs(_ context.Context, queues []string, workerID id.WorkerID, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, aether.ErrStoreClosed
	}

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.Status != job.StatusPending {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(i, k int) bool {
		return m.seq[candidates[i].ID.String()] < m.seq[candidates[k].ID.String()]
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.Status = job.StatusRunning
		j.WorkerID = workerID
		j.Attempt = 1
		t := now
		j.StartedAt = &t
		j.UpdatedAt = now
		result[i] = j.Clone()
	}

	return result, nil
}

// GetJob returns a snapshot of a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, aether.ErrStoreClosed
	}
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, aether.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateProgress records a phase-boundary envelope for a running job.
// Percentages below the recorded maximum are clamped so observed progress
// never regresses.
func (m *Store) UpdateProgress(_ context.Context, jobID id.JobID, p job.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return aether.ErrStoreClosed
	}
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return aether.ErrJobNotFound
	}
	if j.Status != job.StatusRunning {
		return aether.ErrJobNotRunning
	}

	j.Phase = p.Phase
	if p.Percent > j.Progress {
		j.Progress = p.Percent
	}
	j.Total = p.Total
	j.Completed = p.Completed
	j.CurrentItem = p.CurrentItem
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// SetAttempt records the attempt counter for a running job.
func (m *Store) SetAttempt(_ context.Context, jobID id.JobID, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return aether.ErrStoreClosed
	}
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return aether.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return aether.ErrJobFinalized
	}
	j.Attempt = attempt
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// CompleteJob transitions a running job to succeeded and records its
// result. Terminal jobs are write-once.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return aether.ErrStoreClosed
	}
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return aether.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return aether.ErrJobFinalized
	}

	now := time.Now().UTC()
	j.Status = job.StatusSucceeded
	j.Result = append([]byte(nil), result...)
	j.Progress = 100
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// FailJob transitions a job to failed and records the structured error.
// Terminal jobs are write-once.
func (m *Store) FailJob(_ context.Context, jobID id.JobID, jobErr *aether.Error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return aether.ErrStoreClosed
	}
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return aether.ErrJobNotFound
	}
	if j.Status.Terminal() {
		return aether.ErrJobFinalized
	}

	now := time.Now().UTC()
	j.Status = job.StatusFailed
	if jobErr != nil {
		e := *jobErr
		j.Error = &e
	}
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

// ListJobs returns jobs matching the given status, oldest first.
func (m *Store) ListJobs(_ context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, aether.ErrStoreClosed
	}

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if status != "" && j.Status != status {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return m.seq[result[i].ID.String()] < m.seq[result[k].ID.String()]
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, aether.ErrStoreClosed
	}

	var n int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		n++
	}
	return n, nil
}

// PruneFinished removes terminal jobs that finished before the retention
// window and returns how many were reclaimed.
func (m *Store) PruneFinished(_ context.Context, retention time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, aether.ErrStoreClosed
	}

	cutoff := time.Now().UTC().Add(-retention)
	pruned := 0
	for key, j := range m.jobs {
		if !j.Status.Terminal() {
			continue
		}
		if j.FinishedAt == nil || j.FinishedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, key)
		delete(m.seq, key)
		pruned++
	}
	return pruned, nil
}

// Len returns the number of stored jobs. Test helper.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}
