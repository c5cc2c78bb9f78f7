package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/job"
)

// Recover converts a panicking handler into a permanent job failure.
// A handler that panics on a payload will panic on the same payload
// again, so the failure is never retried. The stack trace goes to the
// log, not the job record.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("job handler panicked",
				slog.String("job_id", j.ID.String()),
				slog.String("job_kind", j.Kind),
				slog.String("queue", j.Queue),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			retErr = aether.Permanentf("panic in job %s: %v", j.Kind, r)
		}()
		return next(ctx)
	}
}
