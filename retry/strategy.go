// Package retry decides whether a failed execution attempt is retried,
// with what delay, and when the failure is terminal. Delay strategies are
// pluggable and stateless, so all of them are safe for concurrent use.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(queue string, attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of queue or attempt.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant delay strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ string, _ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// PerQueue
// ──────────────────────────────────────────────────

// PerQueue returns a fixed delay chosen by queue name. This is the
// default policy: crawl jobs wait a full minute between attempts while
// analysis and content jobs wait thirty seconds.
type PerQueue struct {
	Delays   map[string]time.Duration
	Fallback time.Duration
}

// NewPerQueue creates a per-queue fixed delay strategy.
func NewPerQueue(delays map[string]time.Duration, fallback time.Duration) *PerQueue {
	return &PerQueue{Delays: delays, Fallback: fallback}
}

// Delay returns the queue's configured delay, or the fallback for queues
// without one.
func (p *PerQueue) Delay(queue string, _ int) time.Duration {
	if d, ok := p.Delays[queue]; ok {
		return d
	}
	return p.Fallback
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential delay strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(_ string, attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many retries happen simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(_ string, attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default delay policy: fixed per-queue
// countdowns of 60s for crawl jobs and 30s for analysis and content jobs.
func DefaultStrategy() Strategy {
	return NewPerQueue(map[string]time.Duration{
		"crawl":    60 * time.Second,
		"analysis": 30 * time.Second,
		"content":  30 * time.Second,
	}, 30*time.Second)
}
