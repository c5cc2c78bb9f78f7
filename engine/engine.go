package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/cache"
	cachemem "github.com/nmang004/projectaether/cache/memory"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
	mw "github.com/nmang004/projectaether/middleware"
	"github.com/nmang004/projectaether/queue"
	"github.com/nmang004/projectaether/retry"
	"github.com/nmang004/projectaether/stream"
	"github.com/nmang004/projectaether/worker"
)

// Engine wraps a Dispatcher with typed subsystem access. Use Build() to
// create one from a Dispatcher.
type Engine struct {
	d        *aether.Dispatcher
	registry *job.Registry
	jobStore job.Store
	retries  *retry.Controller
	pool     *worker.Pool
	broker   *stream.Broker
	gateway  *cache.Gateway
	logger   *slog.Logger

	// Maintenance scheduler: retention pruning and periodic health logs.
	maintenance *cron.Cron

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	strategy retry.Strategy
	mws      []mw.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithMiddleware adds middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithRetryStrategy sets the retry delay policy. If not set,
// retry.DefaultStrategy() (fixed per-queue countdowns) is used.
func WithRetryStrategy(s retry.Strategy) Option {
	return func(eng *Engine) {
		eng.strategy = s
	}
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithCache sets the cache gateway shared by all lookup call sites.
// If not set, a memory-backed gateway is built.
func WithCache(g *cache.Gateway) Option {
	return func(eng *Engine) {
		eng.gateway = g
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider. If not set, the
// global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// The Dispatcher's store must implement job.Store.
func Build(d *aether.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, aether.ErrNoStore
	}
	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("aether: store does not implement job.Store")
	}

	eng := &Engine{
		d:        d,
		registry: job.NewRegistry(),
		jobStore: js,
		broker:   stream.NewBroker(logger),
		logger:   logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	config := d.Config()
	eng.retries = retry.NewController(eng.strategy, config.MaxAttempts)

	if eng.gateway == nil {
		eng.gateway = cache.New(cachemem.New(), cache.WithLogger(logger))
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/nmang004/projectaether")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/nmang004/projectaether")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.jobStore, eng.broker, eng.retries, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
	}
	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(eng.jobStore, executor, logger, poolOpts...)
	d.SetPool(eng.pool)

	eng.maintenance = eng.buildMaintenance(config)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Submit validates and persists a job, returning its record with the ID
// the caller polls. The job starts pending; a worker picks it up on its
// queue. Validation or persistence failure means no record exists.
func Submit[T any](ctx context.Context, eng *Engine, kind string, payload T) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, aether.Serializationf("encode payload for job kind %q: %v", kind, err)
	}
	return eng.SubmitRaw(ctx, kind, data)
}

// SubmitRaw submits a job with a pre-serialized payload.
func (eng *Engine) SubmitRaw(ctx context.Context, kind string, payload []byte) (*job.Job, error) {
	if err := eng.registry.Validate(kind, payload); err != nil {
		return nil, err
	}

	opts := eng.registry.OptionsFor(kind)
	j := &job.Job{
		Entity:      aether.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        kind,
		Queue:       opts.Queue,
		Payload:     payload,
		Status:      job.StatusPending,
		MaxAttempts: opts.MaxAttempts,
		Timeout:     opts.Timeout,
	}

	if err := eng.jobStore.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	eng.broker.JobSubmitted(j)
	eng.logger.Info("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", kind),
		slog.String("queue", j.Queue),
	)
	return j, nil
}

// Status returns a snapshot of the job's current state. Unknown or
// expired IDs return aether.ErrJobNotFound.
func (eng *Engine) Status(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobStore.GetJob(ctx, jobID)
}

// Start begins job processing: the maintenance scheduler first, then the
// worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	eng.maintenance.Start()
	return eng.d.Start(ctx)
}

// Stop gracefully shuts down the engine: no new claims, a bounded wait
// for in-flight jobs, then the broker and store.
func (eng *Engine) Stop(ctx context.Context) error {
	mctx := eng.maintenance.Stop()
	select {
	case <-mctx.Done():
	case <-ctx.Done():
	}

	err := eng.d.Stop(ctx)
	eng.broker.Close()
	return err
}

// buildMaintenance schedules the retention prune and a periodic health
// log, replacing the original deployment's beat schedule.
func (eng *Engine) buildMaintenance(config aether.Config) *cron.Cron {
	c := cron.New()

	//nolint:errcheck // "@every" specs always parse
	c.AddFunc("@every 5m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := eng.jobStore.PruneFinished(ctx, config.Retention)
		if err != nil {
			eng.logger.Error("retention prune failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			eng.logger.Info("pruned finished jobs", slog.Int("count", n))
		}
	})

	//nolint:errcheck
	c.AddFunc("@every 30m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pending, err := eng.jobStore.CountJobs(ctx, job.CountOpts{Status: job.StatusPending})
		if err != nil {
			eng.logger.Error("health check failed", slog.String("error", err.Error()))
			return
		}
		running, _ := eng.jobStore.CountJobs(ctx, job.CountOpts{Status: job.StatusRunning}) //nolint:errcheck
		stats := eng.broker.Stats()
		eng.logger.Info("engine health",
			slog.Int64("pending_jobs", pending),
			slog.Int64("running_jobs", running),
			slog.Int("watchers", stats.SubscriberCount),
			slog.Int64("dropped_events", stats.TotalDropped),
		)
	})

	return c
}

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Broker returns the progress event broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Cache returns the cache gateway.
func (eng *Engine) Cache() *cache.Gateway { return eng.gateway }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *aether.Dispatcher { return eng.d }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// WorkerID returns the pool's worker identifier.
func (eng *Engine) WorkerID() id.WorkerID { return eng.pool.WorkerID() }
