package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nmang004/projectaether/job"
)

// Timeout enforces the job's per-kind execution deadline. A zero
// Timeout runs unbounded. Deadline expiry cancels the handler's context;
// the resulting context.DeadlineExceeded flows through the error
// taxonomy as a permanent failure.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()

		err := next(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("job exceeded its deadline",
				slog.String("job_id", j.ID.String()),
				slog.String("job_kind", j.Kind),
				slog.Duration("timeout", j.Timeout),
			)
		}
		return err
	}
}
