package queue

import (
	"sync"
	"testing"
	"time"
)

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	// No configs; Acquire/Release should always succeed.
	if !m.Acquire("any-queue") {
		t.Fatal("expected Acquire to succeed for unconfigured queue")
	}
	m.Release("any-queue")
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{
		Name:           "analysis",
		MaxConcurrency: 2,
	})

	if !m.Acquire("analysis") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire("analysis") {
		t.Fatal("second Acquire should succeed")
	}
	// Third should be blocked.
	if m.Acquire("analysis") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	// Release one slot.
	m.Release("analysis")
	if !m.Acquire("analysis") {
		t.Fatal("Acquire should succeed after Release")
	}
}

func TestManager_AcquireRelease_ActiveCount(t *testing.T) {
	m := NewManager(Config{
		Name:           "crawl",
		MaxConcurrency: 5,
	})

	for i := range 3 {
		if !m.Acquire("crawl") {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	if m.ActiveCount("crawl") != 3 {
		t.Fatalf("expected 3 active, got %d", m.ActiveCount("crawl"))
	}

	m.Release("crawl")
	m.Release("crawl")
	if m.ActiveCount("crawl") != 1 {
		t.Fatalf("expected 1 active, got %d", m.ActiveCount("crawl"))
	}
}

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{
		Name:      "limited",
		RateLimit: 1.0, // 1 per second
		RateBurst: 1,
	})

	// First should succeed (burst allows it).
	if !m.Acquire("limited") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release("limited")

	// Immediately after, token bucket is empty.
	if m.Acquire("limited") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	// Wait for token refill.
	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire("limited") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release("limited")
}

func TestManager_SetQueueConfig_PreservesActive(t *testing.T) {
	m := NewManager(Config{Name: "crawl", MaxConcurrency: 5})

	m.Acquire("crawl")
	m.Acquire("crawl")

	m.SetQueueConfig(Config{Name: "crawl", MaxConcurrency: 2})
	if m.ActiveCount("crawl") != 2 {
		t.Fatalf("expected active count preserved, got %d", m.ActiveCount("crawl"))
	}
	// Already at the new cap.
	if m.Acquire("crawl") {
		t.Fatal("Acquire should fail at the reconfigured cap")
	}
}

func TestManager_ConcurrentAcquire(t *testing.T) {
	m := NewManager(Config{Name: "crawl", MaxConcurrency: 10})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("crawl") {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 10 {
		t.Fatalf("expected exactly 10 acquisitions, got %d", acquired)
	}
	if m.ActiveCount("crawl") != 10 {
		t.Fatalf("expected 10 active, got %d", m.ActiveCount("crawl"))
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{
		Name:           "crawl",
		MaxConcurrency: 5,
	})

	// Release without Acquire should not go negative.
	m.Release("crawl")
	if m.ActiveCount("crawl") != 0 {
		t.Fatal("active count should not go below 0")
	}
}
