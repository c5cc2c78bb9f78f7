package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
	"github.com/nmang004/projectaether/retry"
	"github.com/nmang004/projectaether/store/memory"
)

func submitJob(t *testing.T, st *memory.Store, kind, queue string) *job.Job {
	t.Helper()
	j := &job.Job{
		Entity:      aether.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        kind,
		Queue:       queue,
		Status:      job.StatusPending,
		MaxAttempts: 3,
	}
	if err := st.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

// waitForStatus polls the store until the job reaches the wanted status
// or the deadline passes.
func waitForStatus(t *testing.T, st *memory.Store, jobID id.JobID, want job.Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := st.GetJob(context.Background(), jobID)
	t.Fatalf("job %s status = %q, want %q", jobID, got.Status, want)
}

func TestPool_ClaimsAndExecutes(t *testing.T) {
	st := memory.New()
	reg := job.NewRegistry()
	var ran atomic.Int32
	job.RegisterDefinition(reg, job.NewDefinition("site_audit",
		func(ctx context.Context, p auditPayload, rep job.Reporter) ([]byte, error) {
			ran.Add(1)
			return []byte(`{}`), nil
		}))

	exec := NewExecutor(reg, st, nil, retry.NewController(retry.NewConstant(0), 3), testLogger())
	pool := NewPool(st, exec, testLogger(),
		WithPoolConcurrency(2),
		WithPoolQueues([]string{"crawl", "analysis"}),
		WithPollInterval(5*time.Millisecond),
	)

	jobs := []*job.Job{
		submitJob(t, st, "site_audit", "crawl"),
		submitJob(t, st, "site_audit", "analysis"),
		submitJob(t, st, "site_audit", "crawl"),
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, j := range jobs {
		waitForStatus(t, st, j.ID, job.StatusSucceeded)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := ran.Load(); got != 3 {
		t.Errorf("handler ran %d times, want 3", got)
	}
}

func TestPool_SkipsQueuesNotConfigured(t *testing.T) {
	st := memory.New()
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("site_audit",
		func(ctx context.Context, p auditPayload, rep job.Reporter) ([]byte, error) {
			return nil, nil
		}))

	exec := NewExecutor(reg, st, nil, retry.NewController(retry.NewConstant(0), 3), testLogger())
	pool := NewPool(st, exec, testLogger(),
		WithPoolQueues([]string{"analysis"}),
		WithPollInterval(5*time.Millisecond),
	)

	inAnalysis := submitJob(t, st, "site_audit", "analysis")
	inCrawl := submitJob(t, st, "site_audit", "crawl")

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, st, inAnalysis.ID, job.StatusSucceeded)

	got, _ := st.GetJob(context.Background(), inCrawl.ID)
	if got.Status != job.StatusPending {
		t.Errorf("crawl job status = %q, want pending", got.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Stop(ctx) //nolint:errcheck
}

// gatingManager denies a queue until released, so the test can hold jobs
// back and verify the pool never claims while denied.
type gatingManager struct {
	mu       sync.Mutex
	allow    bool
	acquired int
	released int
}

func (g *gatingManager) Acquire(queue string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.allow {
		return false
	}
	g.acquired++
	return true
}

func (g *gatingManager) Release(queue string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
}

func (g *gatingManager) open() {
	g.mu.Lock()
	g.allow = true
	g.mu.Unlock()
}

func TestPool_QueueManagerGatesClaims(t *testing.T) {
	st := memory.New()
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("site_audit",
		func(ctx context.Context, p auditPayload, rep job.Reporter) ([]byte, error) {
			return nil, nil
		}))

	gate := &gatingManager{}
	exec := NewExecutor(reg, st, nil, retry.NewController(retry.NewConstant(0), 3), testLogger())
	pool := NewPool(st, exec, testLogger(),
		WithPoolConcurrency(1),
		WithPollInterval(5*time.Millisecond),
		WithQueueManager(gate),
	)

	j := submitJob(t, st, "site_audit", "analysis")

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	got, _ := st.GetJob(context.Background(), j.ID)
	if got.Status != job.StatusPending {
		t.Fatalf("job claimed while queue denied, status = %q", got.Status)
	}

	gate.open()
	waitForStatus(t, st, j.ID, job.StatusSucceeded)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Stop(ctx) //nolint:errcheck

	gate.mu.Lock()
	defer gate.mu.Unlock()
	if gate.released < gate.acquired {
		t.Errorf("released %d < acquired %d, slot leaked", gate.released, gate.acquired)
	}
}

func TestPool_StopWithoutStart(t *testing.T) {
	st := memory.New()
	exec := NewExecutor(job.NewRegistry(), st, nil, retry.NewController(retry.NewConstant(0), 3), testLogger())
	pool := NewPool(st, exec, testLogger())
	if err := pool.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start = %v, want nil", err)
	}
}

func TestPool_StartIsIdempotent(t *testing.T) {
	st := memory.New()
	exec := NewExecutor(job.NewRegistry(), st, nil, retry.NewController(retry.NewConstant(0), 3), testLogger())
	pool := NewPool(st, exec, testLogger(), WithPollInterval(5*time.Millisecond))

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pool.Start(context.Background()); err != nil {
		t.Errorf("second Start = %v, want nil", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
