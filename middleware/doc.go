// Package middleware supplies the wrappers every job attempt runs
// through before its handler: panic recovery, start/finish logging,
// per-kind deadlines, OpenTelemetry tracing and metrics.
//
// The engine assembles the default stack; custom middleware slots in
// via engine options:
//
//	func Audited() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        err := next(ctx)
//	        record(j.Kind, err)
//	        return err
//	    }
//	}
//
// Middleware that returns without calling next aborts the attempt, which
// is how Recover turns a panic into a permanent failure.
package middleware
