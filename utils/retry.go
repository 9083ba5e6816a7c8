package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryBudget bounds the transient failures a single crawl unit may absorb.
// The budget spans every page of the unit, so a unit limping from page to
// page still escalates instead of retrying forever. The backoff is fixed
// rather than exponential: the upstream throttles on request frequency, so a
// constant interval is what it expects.
type RetryBudget struct {
	MaxFailures int
	Delay       time.Duration
	Logger      *Logger

	failures int
}

// Failure records one transient failure. While the budget lasts it waits out
// the backoff interval and returns nil so the caller retries the same
// operation. Once the failure count exceeds MaxFailures it returns a fatal
// error wrapping the cause. A cancelled context aborts the wait and returns
// ctx.Err().
func (b *RetryBudget) Failure(ctx context.Context, operationName string, cause error) error {
	b.failures++
	if b.failures > b.MaxFailures {
		return fmt.Errorf("%s failed, transient failure budget exhausted (%d/%d): %w",
			operationName, b.failures, b.MaxFailures, cause)
	}

	b.Logger.Warn("%s failed (transient failure %d/%d): %v, retrying in %v",
		operationName, b.failures, b.MaxFailures, cause, b.Delay)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.Delay):
		return nil
	}
}

// Failures returns the number of transient failures recorded so far.
func (b *RetryBudget) Failures() int {
	return b.failures
}
