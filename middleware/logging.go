package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/nmang004/projectaether/job"
)

// Logging logs the start and outcome of every execution attempt. The
// attempt counter distinguishes retries of the same job in the log
// stream.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []any{
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", j.Kind),
			slog.String("queue", j.Queue),
			slog.Int("attempt", j.Attempt),
		}
		logger.Info("job attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Error("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.Info("job attempt completed", attrs...)
		return nil
	}
}
