package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nmang004/projectaether/job"
)

// tracerName is the instrumentation scope for job execution spans.
const tracerName = "github.com/nmang004/projectaether"

// Tracing wraps every execution attempt in an "aether.job.execute" span
// from the global TracerProvider. Without a configured provider the
// global tracer is a noop and the middleware is pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an injected tracer, for tests or
// multi-provider setups.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "aether.job.execute",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(spanAttrs(j)...),
		)
		defer span.End()

		err := next(ctx)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}

func spanAttrs(j *job.Job) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("aether.job.id", j.ID.String()),
		attribute.String("aether.job.kind", j.Kind),
		attribute.String("aether.queue", j.Queue),
		attribute.Int("aether.attempt", j.Attempt),
	}
}
