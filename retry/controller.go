package retry

import (
	"time"

	aether "github.com/nmang004/projectaether"
)

// Decision is the controller's verdict on a failed attempt.
type Decision struct {
	// Retry reports whether another attempt should be made.
	Retry bool
	// Delay is how long to wait before the next attempt. Zero when Retry
	// is false.
	Delay time.Duration
}

// Controller decides retry eligibility, delay, and exhaustion for
// recoverable failures. It is stateless and safe for concurrent use.
type Controller struct {
	strategy    Strategy
	maxAttempts int
}

// NewController creates a Controller. maxAttempts counts the first run;
// the default budget of 3 means one run plus two retries. A nil strategy
// falls back to DefaultStrategy.
func NewController(strategy Strategy, maxAttempts int) *Controller {
	if strategy == nil {
		strategy = DefaultStrategy()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Controller{strategy: strategy, maxAttempts: maxAttempts}
}

// MaxAttempts returns the default attempt budget.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// ShouldRetry decides whether the attempt that just failed with err is
// retried. attempt is the 1-indexed attempt that failed; maxAttempts
// overrides the controller default when positive.
//
// Any error not explicitly classified as non-recoverable is retryable:
// validation, permanent, and serialization failures route straight to a
// terminal failure, everything else retries until the budget runs out.
func (c *Controller) ShouldRetry(queue string, attempt, maxAttempts int, err error) Decision {
	if maxAttempts <= 0 {
		maxAttempts = c.maxAttempts
	}
	if !aether.Retryable(err) {
		return Decision{}
	}
	if attempt >= maxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: c.strategy.Delay(queue, attempt)}
}
