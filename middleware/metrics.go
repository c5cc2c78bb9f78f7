package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nmang004/projectaether/job"
)

// meterName is the instrumentation scope for job execution metrics.
const meterName = "github.com/nmang004/projectaether"

// jobInstruments holds the two execution instruments. Both carry the
// job_kind, queue, and status ("ok" or "error") attributes.
type jobInstruments struct {
	duration   metric.Float64Histogram
	executions metric.Int64Counter
}

func newJobInstruments(meter metric.Meter) jobInstruments {
	// Instrument constructors fall back to noops on error, so the
	// returned errors carry no actionable signal here.
	duration, _ := meter.Float64Histogram( //nolint:errcheck
		"aether.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter( //nolint:errcheck
		"aether.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)
	return jobInstruments{duration: duration, executions: executions}
}

func (ins jobInstruments) record(ctx context.Context, j *job.Job, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("job_kind", j.Kind),
		attribute.String("queue", j.Queue),
		attribute.String("status", status),
	)
	ins.duration.Record(ctx, elapsed.Seconds(), attrs)
	ins.executions.Add(ctx, 1, attrs)
}

// Metrics records per-attempt duration and outcome counters on the
// global MeterProvider. Without a configured provider the instruments
// are noops.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an injected meter, for tests.
func MetricsWithMeter(meter metric.Meter) Middleware {
	ins := newJobInstruments(meter)
	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		ins.record(ctx, j, time.Since(start), err)
		return err
	}
}
