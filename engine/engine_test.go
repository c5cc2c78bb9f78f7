package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	aether "github.com/nmang004/projectaether"
	"github.com/nmang004/projectaether/id"
	"github.com/nmang004/projectaether/job"
	"github.com/nmang004/projectaether/retry"
	memstore "github.com/nmang004/projectaether/store/memory"
	"github.com/nmang004/projectaether/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type echoPayload struct {
	Message string `json:"message"`
}

func (p echoPayload) Validate() error {
	if p.Message == "" {
		return aether.Validationf("message is required")
	}
	return nil
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	d, err := aether.New(
		aether.WithStore(memstore.New()),
		aether.WithLogger(testLogger()),
		aether.WithConcurrency(4),
		aether.WithPollInterval(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("aether.New: %v", err)
	}

	opts = append([]Option{WithRetryStrategy(retry.NewConstant(0))}, opts...)
	eng, err := Build(d, opts...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return eng
}

func startEngine(t *testing.T, eng *Engine) {
	t.Helper()
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := eng.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
}

func awaitTerminal(t *testing.T, eng *Engine, jobID id.JobID) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := eng.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if j.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

func TestSubmit_RunsToSuccess(t *testing.T) {
	eng := newTestEngine(t)
	Register(eng, job.NewDefinition("echo",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			rep.Report(ctx, job.ProgressUpdate{Phase: "working", Percent: 50})
			return []byte(`{"echo":"` + p.Message + `"}`), nil
		}))
	startEngine(t, eng)

	j, err := Submit(context.Background(), eng, "echo", echoPayload{Message: "hello"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Errorf("submitted status = %q, want pending", j.Status)
	}

	got := awaitTerminal(t, eng, j.ID)
	if got.Status != job.StatusSucceeded {
		t.Fatalf("Status = %q (error %v), want succeeded", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if string(got.Result) != `{"echo":"hello"}` {
		t.Errorf("Result = %q", got.Result)
	}
}

func TestSubmit_ValidationFailureLeavesNoRecord(t *testing.T) {
	eng := newTestEngine(t)
	Register(eng, job.NewDefinition("echo",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			return nil, nil
		}))

	_, err := Submit(context.Background(), eng, "echo", echoPayload{})
	if err == nil {
		t.Fatal("Submit accepted an invalid payload")
	}
	if aether.KindOf(err) != aether.KindValidation {
		t.Errorf("KindOf = %q, want validation", aether.KindOf(err))
	}

	count, err := eng.jobStore.CountJobs(context.Background(), job.CountOpts{})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if count != 0 {
		t.Errorf("store has %d jobs after rejected submission, want 0", count)
	}
}

func TestSubmit_UnknownKind(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.SubmitRaw(context.Background(), "nope", nil)
	if !errors.Is(err, aether.ErrUnknownJobKind) {
		t.Errorf("SubmitRaw = %v, want ErrUnknownJobKind", err)
	}
}

func TestSubmit_UsesRegisteredQueueAndBudget(t *testing.T) {
	eng := newTestEngine(t)
	Register(eng, job.NewDefinition("echo",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			return nil, nil
		},
		job.WithQueue("crawl"),
		job.WithMaxAttempts(5),
	))

	j, err := Submit(context.Background(), eng, "echo", echoPayload{Message: "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j.Queue != "crawl" || j.MaxAttempts != 5 {
		t.Errorf("job = queue %q budget %d, want crawl/5", j.Queue, j.MaxAttempts)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	eng := newTestEngine(t)
	var calls atomic.Int32
	Register(eng, job.NewDefinition("flaky",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			if calls.Add(1) < 3 {
				return nil, aether.Transientf("upstream returned 503")
			}
			return []byte(`{}`), nil
		}))
	startEngine(t, eng)

	j, err := Submit(context.Background(), eng, "flaky", echoPayload{Message: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := awaitTerminal(t, eng, j.ID)
	if got.Status != job.StatusSucceeded {
		t.Fatalf("Status = %q, want succeeded after retries", got.Status)
	}
	if got.Attempt != 3 {
		t.Errorf("Attempt = %d, want 3", got.Attempt)
	}
}

func TestRetry_ExhaustionRecordsLastError(t *testing.T) {
	eng := newTestEngine(t)
	Register(eng, job.NewDefinition("doomed",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			return nil, aether.Transientf("connection refused by upstream")
		}))
	startEngine(t, eng)

	j, err := Submit(context.Background(), eng, "doomed", echoPayload{Message: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := awaitTerminal(t, eng, j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Kind != aether.KindExhausted {
		t.Fatalf("Error = %+v, want exhausted kind", got.Error)
	}
	if got.Error.Message != "connection refused by upstream" {
		t.Errorf("Error.Message = %q, want last attempt message verbatim", got.Error.Message)
	}
	if got.Attempt != 3 {
		t.Errorf("Attempt = %d, want the full budget", got.Attempt)
	}
}

func TestStatus_UnknownID(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Status(context.Background(), id.NewJobID()); !errors.Is(err, aether.ErrJobNotFound) {
		t.Errorf("Status = %v, want ErrJobNotFound", err)
	}
}

func TestWatch_ProgressEventsReachSubscriber(t *testing.T) {
	eng := newTestEngine(t)
	release := make(chan struct{})
	Register(eng, job.NewDefinition("staged",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			rep.Report(ctx, job.ProgressUpdate{Phase: "first", Percent: 30})
			<-release
			rep.Report(ctx, job.ProgressUpdate{Phase: "second", Percent: 70})
			return []byte(`{}`), nil
		}))
	startEngine(t, eng)

	j, err := Submit(context.Background(), eng, "staged", echoPayload{Message: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sub := eng.Broker().Subscribe("test-watcher", stream.JobTopic(j.ID.String()))
	defer eng.Broker().RemoveSubscriber("test-watcher")
	close(release)

	var sawProgress, sawSucceeded bool
	timeout := time.After(3 * time.Second)
	for !(sawProgress && sawSucceeded) {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				t.Fatal("subscriber channel closed early")
			}
			switch evt.Type {
			case stream.EventJobProgress:
				sawProgress = true
			case stream.EventJobSucceeded:
				sawSucceeded = true
			}
		case <-timeout:
			t.Fatalf("timed out; progress=%v succeeded=%v", sawProgress, sawSucceeded)
		}
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	eng := newTestEngine(t)
	Register(eng, job.NewDefinition("echo",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			return []byte(`{}`), nil
		}))
	startEngine(t, eng)

	var ids []id.JobID
	for range 20 {
		j, err := Submit(context.Background(), eng, "echo", echoPayload{Message: "x"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, j.ID)
	}

	for _, jid := range ids {
		got := awaitTerminal(t, eng, jid)
		if got.Status != job.StatusSucceeded {
			t.Errorf("job %s status = %q", jid, got.Status)
		}
	}
}

func TestBuild_RequiresStore(t *testing.T) {
	d, err := aether.New(aether.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("aether.New: %v", err)
	}
	if _, err := Build(d); !errors.Is(err, aether.ErrNoStore) {
		t.Errorf("Build = %v, want ErrNoStore", err)
	}
}

func TestPanicInHandlerFailsJob(t *testing.T) {
	eng := newTestEngine(t)
	Register(eng, job.NewDefinition("panicky",
		func(ctx context.Context, p echoPayload, rep job.Reporter) ([]byte, error) {
			panic("boom")
		}))
	startEngine(t, eng)

	j, err := Submit(context.Background(), eng, "panicky", echoPayload{Message: "x"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := awaitTerminal(t, eng, j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if got.Error == nil || got.Error.Kind != aether.KindPermanent {
		t.Errorf("Error = %+v, want permanent", got.Error)
	}
}
