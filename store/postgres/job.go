package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
)

const jobColumns = `id, kind, queue, payload, status, phase, progress, total, completed,
	current_item, result, error_kind, error_code, error_message, attempt,
	max_attempts, worker_id, timeout_ns, started_at, finished_at, created_at, updated_at`

// CreateJob persists a new job in pending state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO aether_jobs (id, kind, queue, payload, status, progress,
			attempt, max_attempts, timeout_ns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		j.ID.String(), j.Kind, j.Queue, j.Payload, string(job.StatusPending),
		j.Progress, j.Attempt, j.MaxAttempts, int64(j.Timeout), createdAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return aether.ErrJobAlreadyExists
		}
		return fmt.Errorf("aether/postgres: create job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit pending jobs from the given
// queues using FOR UPDATE SKIP LOCKED, so concurrent claimers never
// block each other or double-claim.
func (s *Store) ClaimJobs(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*job.Job, error) {
	queueClause := ""
	args := []any{workerID.String(), limit}
	if len(queues) > 0 {
		queueClause = "AND queue = ANY($3)"
		args = append(args, queues)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		WITH claimed AS (
			UPDATE aether_jobs
			SET status = 'running', worker_id = $1, attempt = 1,
			    started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM aether_jobs
				WHERE status = 'pending' %s
				ORDER BY created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM claimed ORDER BY created_at ASC`, queueClause),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("aether/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	var claimed []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aether/postgres: claim rows: %w", err)
	}
	return claimed, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM aether_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("aether/postgres: get job: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("aether/postgres: get job: %w", err)
		}
		return nil, aether.ErrJobNotFound
	}
	return scanJob(rows)
}

// UpdateProgress records a phase-boundary envelope for a running job.
// GREATEST() clamps progress regressions server-side.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, p job.ProgressUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE aether_jobs
		SET phase = $1, progress = GREATEST(progress, $2), total = $3,
		    completed = $4, current_item = $5, updated_at = NOW()
		WHERE id = $6 AND status = 'running'`,
		p.Phase, p.Percent, p.Total, p.Completed, p.CurrentItem, jobID.String())
	if err != nil {
		return fmt.Errorf("aether/postgres: progress write: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return aether.ErrJobNotRunning
	}
	return nil
}

// SetAttempt records the attempt counter for a running job.
func (s *Store) SetAttempt(ctx context.Context, jobID id.JobID, attempt int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE aether_jobs
		SET attempt = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'running')`,
		attempt, jobID.String())
	if err != nil {
		return fmt.Errorf("aether/postgres: set attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return aether.ErrJobFinalized
	}
	return nil
}

// CompleteJob transitions a running job to succeeded and records its
// result. Terminal rows never match the WHERE clause, which makes the
// transition write-once.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, result []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE aether_jobs
		SET status = 'succeeded', result = $1, progress = 100,
		    finished_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'running')`,
		result, jobID.String())
	if err != nil {
		return fmt.Errorf("aether/postgres: complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return aether.ErrJobFinalized
	}
	return nil
}

// FailJob transitions a job to failed and records the structured error.
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, jobErr *aether.Error) error {
	var kind, code, message string
	if jobErr != nil {
		kind = string(jobErr.Kind)
		code = jobErr.Code
		message = jobErr.Message
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE aether_jobs
		SET status = 'failed', error_kind = $1, error_code = $2, error_message = $3,
		    finished_at = NOW(), updated_at = NOW()
		WHERE id = $4 AND status IN ('pending', 'running')`,
		kind, code, message, jobID.String())
	if err != nil {
		return fmt.Errorf("aether/postgres: fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return aether.ErrJobFinalized
	}
	return nil
}

// ListJobs returns jobs matching the given status, oldest first.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM aether_jobs WHERE TRUE`
	var args []any
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if opts.Queue != "" {
		args = append(args, opts.Queue)
		query += fmt.Sprintf(` AND queue = $%d`, len(args))
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aether/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aether/postgres: list rows: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM aether_jobs WHERE TRUE`
	var args []any
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if opts.Queue != "" {
		args = append(args, opts.Queue)
		query += fmt.Sprintf(` AND queue = $%d`, len(args))
	}

	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("aether/postgres: count jobs: %w", err)
	}
	return n, nil
}

// PruneFinished removes terminal jobs that finished before the retention
// window.
func (s *Store) PruneFinished(ctx context.Context, retention time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM aether_jobs
		WHERE status IN ('succeeded', 'failed')
		  AND finished_at IS NOT NULL
		  AND finished_at < NOW() - $1::interval`,
		retention)
	if err != nil {
		return 0, fmt.Errorf("aether/postgres: prune: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ── scanning ──

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		rawID, rawWorker             string
		kind, queue, status, phase   string
		currentItem                  string
		errKind, errCode, errMessage string
		payload, result              []byte
		progress, total, completed   int
		attempt, maxAttempts         int
		timeoutNS                    int64
		startedAt, finishedAt        *time.Time
		createdAt, updatedAt         time.Time
	)
	err := row.Scan(&rawID, &kind, &queue, &payload, &status, &phase, &progress,
		&total, &completed, &currentItem, &result, &errKind, &errCode,
		&errMessage, &attempt, &maxAttempts, &rawWorker, &timeoutNS,
		&startedAt, &finishedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, aether.ErrJobNotFound
		}
		return nil, fmt.Errorf("aether/postgres: scan job: %w", err)
	}

	jID, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("aether/postgres: parse job id: %w", err)
	}

	j := &job.Job{
		Entity: aether.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Kind:        kind,
		Queue:       queue,
		Payload:     payload,
		Status:      job.Status(status),
		Phase:       phase,
		Progress:    progress,
		Total:       total,
		Completed:   completed,
		CurrentItem: currentItem,
		Result:      result,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Timeout:     time.Duration(timeoutNS),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}

	if errKind != "" {
		j.Error = &aether.Error{
			Kind:    aether.Kind(errKind),
			Code:    errCode,
			Message: errMessage,
		}
	}
	if rawWorker != "" {
		j.WorkerID, _ = id.ParseWorkerID(rawWorker) //nolint:errcheck // best-effort parse of store-written data
	}
	return j, nil
}

// isDuplicateKey reports whether err is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
