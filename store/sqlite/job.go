package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
)

const jobColumns = `id, kind, queue, payload, status, phase, progress, total, completed,
	current_item, result, error_kind, error_code, error_message, attempt,
	max_attempts, worker_id, timeout_ns, started_at, finished_at, created_at, updated_at`

// CreateJob persists a new job in pending state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	now := time.Now().UTC()
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aether_jobs (id, kind, queue, payload, status, progress,
			attempt, max_attempts, timeout_ns, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.Kind, j.Queue, j.Payload, string(job.StatusPending),
		j.Progress, j.Attempt, j.MaxAttempts, int64(j.Timeout),
		createdAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return aether.ErrJobAlreadyExists
		}
		return fmt.Errorf("aether/sqlite: create job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit pending jobs from the given
// queues. SQLite has no FOR UPDATE SKIP LOCKED, so the claim runs inside
// a serializable transaction: select candidate IDs, flip them to running,
// then read the rows back.
func (s *Store) ClaimJobs(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*job.Job, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("aether/sqlite: claim begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	placeholders := make([]string, len(queues))
	args := make([]any, 0, len(queues)+1)
	for i, q := range queues {
		placeholders[i] = "?"
		args = append(args, q)
	}
	queueClause := ""
	if len(queues) > 0 {
		queueClause = fmt.Sprintf("AND queue IN (%s)", strings.Join(placeholders, ","))
	}
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unbounded
	}
	args = append(args, limit)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id FROM aether_jobs
		WHERE status = 'pending' %s
		ORDER BY created_at ASC
		LIMIT ?`, queueClause), args...)
	if err != nil {
		return nil, fmt.Errorf("aether/sqlite: claim select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var jID string
		if err := rows.Scan(&jID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("aether/sqlite: claim scan: %w", err)
		}
		ids = append(ids, jID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aether/sqlite: claim rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	claimed := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE aether_jobs
			SET status = 'running', worker_id = ?, attempt = 1,
			    started_at = ?, updated_at = ?
			WHERE id = ? AND status = 'pending'`,
			workerID.String(), now, now, jID)
		if err != nil {
			return nil, fmt.Errorf("aether/sqlite: claim update: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 { //nolint:errcheck // sqlite driver always reports affected rows
			continue // lost the race to another claimer
		}

		j, err := scanJob(tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM aether_jobs WHERE id = ?`, jID))
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, j)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("aether/sqlite: claim commit: %w", err)
	}
	return claimed, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM aether_jobs WHERE id = ?`, jobID.String()))
}

// UpdateProgress records a phase-boundary envelope for a running job. The
// MAX() in the update clamps regressions server-side.
func (s *Store) UpdateProgress(ctx context.Context, jobID id.JobID, p job.ProgressUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE aether_jobs
		SET phase = ?, progress = MAX(progress, ?), total = ?, completed = ?,
		    current_item = ?, updated_at = ?
		WHERE id = ? AND status = 'running'`,
		p.Phase, p.Percent, p.Total, p.Completed, p.CurrentItem,
		time.Now().UTC().Format(time.RFC3339Nano), jobID.String())
	if err != nil {
		return fmt.Errorf("aether/sqlite: progress write: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite driver always reports affected rows
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return aether.ErrJobNotRunning
	}
	return nil
}

// SetAttempt records the attempt counter for a running job.
func (s *Store) SetAttempt(ctx context.Context, jobID id.JobID, attempt int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE aether_jobs
		SET attempt = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'running')`,
		attempt, time.Now().UTC().Format(time.RFC3339Nano), jobID.String())
	if err != nil {
		return fmt.Errorf("aether/sqlite: set attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite driver always reports affected rows
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
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE aether_jobs
		SET status = 'succeeded', result = ?, progress = 100,
		    finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'running')`,
		result, now, now, jobID.String())
	if err != nil {
		return fmt.Errorf("aether/sqlite: complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite driver always reports affected rows
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

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE aether_jobs
		SET status = 'failed', error_kind = ?, error_code = ?, error_message = ?,
		    finished_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'running')`,
		kind, code, message, now, now, jobID.String())
	if err != nil {
		return fmt.Errorf("aether/sqlite: fail job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite driver always reports affected rows
		if _, getErr := s.GetJob(ctx, jobID); getErr != nil {
			return getErr
		}
		return aether.ErrJobFinalized
	}
	return nil
}

// ListJobs returns jobs matching the given status, oldest first.
func (s *Store) ListJobs(ctx context.Context, status job.Status, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM aether_jobs WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aether/sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aether/sqlite: list rows: %w", err)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM aether_jobs WHERE 1=1`
	var args []any
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, opts.Queue)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("aether/sqlite: count jobs: %w", err)
	}
	return n, nil
}

// PruneFinished removes terminal jobs that finished before the retention
// window.
func (s *Store) PruneFinished(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM aether_jobs
		WHERE status IN ('succeeded', 'failed')
		  AND finished_at IS NOT NULL
		  AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("aether/sqlite: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("aether/sqlite: prune affected: %w", err)
	}
	return int(n), nil
}

// ── scanning ──

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*job.Job, error) {
	j, err := scanJobRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, aether.ErrJobNotFound
	}
	return j, err
}

func scanJobRows(r rowScanner) (*job.Job, error) {
	var (
		rawID, rawWorker                 string
		kind, queue, status, phase       string
		currentItem                      string
		errKind, errCode, errMessage     string
		payload, result                  []byte
		progress, total, completed       int
		attempt, maxAttempts             int
		timeoutNS                        int64
		startedAt, finishedAt            sql.NullString
		createdAtStr, updatedAtStr       string
	)
	err := r.Scan(&rawID, &kind, &queue, &payload, &status, &phase, &progress,
		&total, &completed, &currentItem, &result, &errKind, &errCode,
		&errMessage, &attempt, &maxAttempts, &rawWorker, &timeoutNS,
		&startedAt, &finishedAt, &createdAtStr, &updatedAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("aether/sqlite: scan job: %w", err)
	}

	jID, err := id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("aether/sqlite: parse job id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, createdAtStr) //nolint:errcheck // best-effort parse of store-written data
	updatedAt, _ := time.Parse(time.RFC3339Nano, updatedAtStr) //nolint:errcheck // best-effort parse of store-written data

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
	if startedAt.Valid && startedAt.String != "" {
		t, _ := time.Parse(time.RFC3339Nano, startedAt.String) //nolint:errcheck // best-effort parse of store-written data
		j.StartedAt = &t
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String) //nolint:errcheck // best-effort parse of store-written data
		j.FinishedAt = &t
	}
	return j, nil
}
