// Package worker provides the job execution engine — an Executor that
// runs claimed jobs through middleware and the registered handler with an
// in-worker retry loop, and a Pool that manages concurrent worker
// goroutines claiming jobs from the store.
package worker

import (
	"context"
	"log/slog"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/job"
	"github.com/nmang004/projectaether/middleware"
	"github.com/nmang004/projectaether/retry"
	"github.com/nmang004/projectaether/stream"
)

// Executor runs a single claimed job to a terminal status. Failed
// attempts retry on the same worker after the controller's delay, so the
// job stays running in the store for its whole lifetime and its observed
// status never moves backwards.
type Executor struct {
	registry *job.Registry
	store    job.Store
	broker   *stream.Broker
	retries  *retry.Controller
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies. The broker
// may be nil when no live watchers are served.
func NewExecutor(
	registry *job.Registry,
	store job.Store,
	broker *stream.Broker,
	retries *retry.Controller,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		store:    store,
		broker:   broker,
		retries:  retries,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a claimed job until it reaches a terminal status.
//
// Each attempt goes through the middleware chain and the registered
// handler. Recoverable failures wait out the controller's delay and run
// again on this worker; non-recoverable failures and an exhausted budget
// finalize the job as failed with a structured error. The returned error
// is the handler error that finalized the job, nil on success.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Kind)
	if !ok {
		jobErr := aether.Permanentf("no handler registered for job kind %q", j.Kind)
		e.finalizeFailure(ctx, j, jobErr, jobErr, 0)
		return jobErr
	}

	if e.broker != nil {
		e.broker.JobStarted(j)
	}

	rep := e.reporter(j)
	start := time.Now()

	for {
		var result []byte
		terminal := func(ctx context.Context) error {
			var err error
			result, err = handler(ctx, j.Payload, rep)
			return err
		}

		err := e.mw(ctx, j, terminal)
		if err == nil {
			return e.finalizeSuccess(ctx, j, result, time.Since(start))
		}

		decision := e.retries.ShouldRetry(j.Queue, j.Attempt, j.MaxAttempts, err)
		if !decision.Retry {
			e.finalizeFailure(ctx, j, err, classifyTerminal(err), time.Since(start))
			return err
		}

		e.logger.Info("job attempt failed, retrying",
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", j.Kind),
			slog.Int("attempt", j.Attempt),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Duration("delay", decision.Delay),
			slog.String("error", err.Error()),
		)

		if waitErr := sleepCtx(ctx, decision.Delay); waitErr != nil {
			// Shutdown during the backoff window finalizes the job; a
			// half-run attempt must not be left running forever.
			e.finalizeFailure(ctx, j, waitErr, aether.AsError(waitErr), time.Since(start))
			return waitErr
		}

		j.Attempt++
		if setErr := e.store.SetAttempt(ctx, j.ID, j.Attempt); setErr != nil {
			e.logger.Error("failed to record attempt counter",
				slog.String("job_id", j.ID.String()),
				slog.String("error", setErr.Error()),
			)
		}
	}
}

// reporter returns the Reporter handed to handlers. Every envelope is
// recorded in the store (which clamps regressions) and fanned out to
// live watchers.
func (e *Executor) reporter(j *job.Job) job.Reporter {
	return job.ReporterFunc(func(ctx context.Context, p job.ProgressUpdate) {
		if err := e.store.UpdateProgress(ctx, j.ID, p); err != nil {
			e.logger.Warn("progress update rejected",
				slog.String("job_id", j.ID.String()),
				slog.String("phase", p.Phase),
				slog.String("error", err.Error()),
			)
			return
		}
		if e.broker != nil {
			e.broker.JobProgress(j, p)
		}
	})
}

func (e *Executor) finalizeSuccess(ctx context.Context, j *job.Job, result []byte, elapsed time.Duration) error {
	if err := e.store.CompleteJob(ctx, j.ID, result); err != nil {
		e.logger.Error("failed to finalize job as succeeded",
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", j.Kind),
			slog.String("error", err.Error()),
		)
		return err
	}
	if e.broker != nil {
		e.broker.JobSucceeded(j, elapsed)
	}
	return nil
}

func (e *Executor) finalizeFailure(ctx context.Context, j *job.Job, cause error, jobErr *aether.Error, elapsed time.Duration) {
	if err := e.store.FailJob(ctx, j.ID, jobErr); err != nil {
		e.logger.Error("failed to finalize job as failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if e.broker != nil {
		e.broker.JobFailed(j, jobErr, elapsed)
	}
	e.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", j.Kind),
		slog.Int("attempt", j.Attempt),
		slog.String("kind", string(jobErr.Kind)),
		slog.String("error", cause.Error()),
	)
}

// classifyTerminal maps the error that ended the attempt loop to the
// structured error recorded on the job. A recoverable failure that ran
// out of budget becomes exhausted with the last message verbatim;
// everything else keeps its own classification.
func classifyTerminal(err error) *aether.Error {
	if aether.Retryable(err) {
		return aether.Exhausted(err)
	}
	return aether.AsError(err)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
