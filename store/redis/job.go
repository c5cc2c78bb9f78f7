package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
)

// CreateJob stores the job as a Hash and adds it to the queue's Sorted Set.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("aether/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return aether.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	// Score by submission time so claims are FIFO within a queue.
	pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{
		Score:  float64(time.Now().UTC().UnixMicro()),
		Member: jID,
	})

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aether/redis: create job: %w", err)
	}
	return nil
}

// ClaimJobs atomically pops up to limit jobs from the given queues and
// marks them running.
func (s *Store) ClaimJobs(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var jobs []*job.Job

	for _, q := range queues {
		if limit > 0 && len(jobs) >= limit {
			break
		}
		// ZPopMin needs a concrete count; a non-positive limit means no cap.
		remaining := int64(limit - len(jobs))
		if limit <= 0 {
			remaining = 1024
		}

		members, err := s.client.ZPopMin(ctx, queueKey(q), remaining).Result()
		if err != nil {
			return nil, fmt.Errorf("aether/redis: claim zpopmin: %w", err)
		}

		for _, z := range members {
			jID, ok := z.Member.(string)
			if !ok {
				continue
			}

			key := jobKey(jID)
			err := s.client.HSet(ctx, key,
				"status", string(job.StatusRunning),
				"worker_id", workerID.String(),
				"attempt", "1",
				"started_at", now.Format(time.RFC3339Nano),
				"updated_at", now.Format(time.RFC3339Nano),
			).Err()
			if err != nil {
				return nil, fmt.Errorf("aether/redis: claim update: %w", err)
			}

			j, getErr := s.getJobByKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateProgress records a phase-boundary envelope for a running job.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, p job.ProgressUpdate) error {
	key := jobKey(jobID.String())

	vals, err := s.client.HMGet(ctx, key, "status", "progress").Result()
	if err != nil {
		return fmt.Errorf("aether/redis: progress read: %w", err)
	}
	status, ok := vals[0].(string)
	if !ok {
		return aether.ErrJobNotFound
	}
	if job.Status(status) != job.StatusRunning {
		return aether.ErrJobNotRunning
	}

	// Clamp so observed progress never regresses.
	percent := p.Percent
	if prev, ok := vals[1].(string); ok {
		if n, convErr := strconv.Atoi(prev); convErr == nil && n > percent {
			percent = n
		}
	}

	err = s.client.HSet(ctx, key,
		"phase", p.Phase,
		"progress", strconv.Itoa(percent),
		"total", strconv.Itoa(p.Total),
		"completed", strconv.Itoa(p.Completed),
		"current_item", p.CurrentItem,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("aether/redis: progress write: %w", err)
	}
	return nil
}

// SetAttempt records the attempt counter for a running job.
func (s *Store) SetAttempt(ctx context.Context, jobID id.JobID, attempt int) error {
	key := jobKey(jobID.String())

	status, err := s.jobStatus(ctx, key)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return aether.ErrJobFinalized
	}

	err = s.client.HSet(ctx, key,
		"attempt", strconv.Itoa(attempt),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("aether/redis: set attempt: %w", err)
	}
	return nil
}

// CompleteJob transitions a running job to succeeded and records its result.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, result []byte) error {
	key := jobKey(jobID.String())

	status, err := s.jobStatus(ctx, key)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return aether.ErrJobFinalized
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(job.StatusSucceeded),
		"result", string(result),
		"progress", "100",
		"finished_at", now,
		"updated_at", now,
	)
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aether/redis: complete job: %w", err)
	}
	return nil
}

// FailJob transitions a job to failed and records the structured error.
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, jobErr *aether.Error) error {
	key := jobKey(jobID.String())

	status, err := s.jobStatus(ctx, key)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return aether.ErrJobFinalized
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	fields := map[string]interface{}{
		"status":      string(job.StatusFailed),
		"finished_at": now,
		"updated_at":  now,
	}
	if jobErr != nil {
		fields["error_kind"] = string(jobErr.Kind)
		fields["error_code"] = jobErr.Code
		fields["error_message"] = jobErr.Message
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	}
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aether/redis: fail job: %w", err)
	}
	return nil
}

// ListJobs returns jobs matching the given status, oldest first.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("aether/redis: list smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // hash expired since enumeration
		}
		if status != "" && j.Status != status {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("aether/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// PruneFinished removes terminal jobs that finished before the retention
// window. Hashes already reclaimed by the server-side TTL only have their
// index entry cleaned up and are not counted.
func (s *Store) PruneFinished(ctx context.Context, retention time.Duration) (int, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("aether/redis: prune smembers: %w", err)
	}

	cutoff := time.Now().UTC().Add(-retention)
	pruned := 0
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if errors.Is(getErr, aether.ErrJobNotFound) {
			if remErr := s.client.SRem(ctx, jobIDsKey, jID).Err(); remErr != nil {
				return pruned, fmt.Errorf("aether/redis: prune index cleanup: %w", remErr)
			}
			continue
		}
		if getErr != nil {
			return pruned, getErr
		}
		if !j.Status.Terminal() || j.FinishedAt == nil || j.FinishedAt.After(cutoff) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(jID))
		pipe.SRem(ctx, jobIDsKey, jID)
		if _, err = pipe.Exec(ctx); err != nil {
			return pruned, fmt.Errorf("aether/redis: prune job: %w", err)
		}
		pruned++
	}
	return pruned, nil
}

// ── helpers ──

func (s *Store) jobStatus(ctx context.Context, key string) (job.Status, error) {
	status, err := s.client.HGet(ctx, key, "status").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", aether.ErrJobNotFound
		}
		return "", fmt.Errorf("aether/redis: status read: %w", err)
	}
	return job.Status(status), nil
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"kind":         j.Kind,
		"queue":        j.Queue,
		"payload":      string(j.Payload),
		"status":       string(j.Status),
		"phase":        j.Phase,
		"progress":     strconv.Itoa(j.Progress),
		"total":        strconv.Itoa(j.Total),
		"completed":    strconv.Itoa(j.Completed),
		"current_item": j.CurrentItem,
		"attempt":      strconv.Itoa(j.Attempt),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"worker_id":    j.WorkerID.String(),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.Result != nil {
		m["result"] = string(j.Result)
	}
	if j.Error != nil {
		m["error_kind"] = string(j.Error.Kind)
		m["error_code"] = j.Error.Code
		m["error_message"] = j.Error.Message
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		m["finished_at"] = j.FinishedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("aether/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, aether.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("aether/redis: parse job id: %w", err)
	}

	progress, _ := strconv.Atoi(m["progress"])            //nolint:errcheck // best-effort parse from trusted Redis data
	total, _ := strconv.Atoi(m["total"])                  //nolint:errcheck // best-effort parse from trusted Redis data
	completed, _ := strconv.Atoi(m["completed"])          //nolint:errcheck // best-effort parse from trusted Redis data
	attempt, _ := strconv.Atoi(m["attempt"])              //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])     //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64)  //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: aether.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Kind:        m["kind"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Status:      job.Status(m["status"]),
		Phase:       m["phase"],
		Progress:    progress,
		Total:       total,
		Completed:   completed,
		CurrentItem: m["current_item"],
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Timeout:     time.Duration(timeout),
	}

	if v := m["result"]; v != "" {
		j.Result = []byte(v)
	}
	if v := m["error_kind"]; v != "" {
		j.Error = &aether.Error{
			Kind:    aether.Kind(v),
			Code:    m["error_code"],
			Message: m["error_message"],
		}
	}
	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.FinishedAt = &t
	}

	return j, nil
}
