package middleware

import (
	"context"

	"github.com/nmang004/projectaether/job"
)

// Handler is the innermost function of a chain: the job's registered
// logic, already bound to its decoded payload and reporter.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting behavior around one
// execution attempt. Returning without calling next aborts the attempt
// with the returned error.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes middleware into one. The first element becomes the
// outermost wrapper, so Chain(a, b) runs a's pre-logic, then b's, then
// the handler, then unwinds b and a in reverse.
func Chain(mws ...Middleware) Middleware {
	if len(mws) == 0 {
		return func(ctx context.Context, _ *job.Job, next Handler) error {
			return next(ctx)
		}
	}
	if len(mws) == 1 {
		return mws[0]
	}

	outer, inner := mws[0], Chain(mws[1:]...)
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return outer(ctx, j, func(ctx context.Context) error {
			return inner(ctx, j, next)
		})
	}
}
