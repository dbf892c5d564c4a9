// Package resilience implements the Retry Controller and the process-wide
// concurrency governor that bound how aggressively the orchestration core
// drives agent invocations.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/agentcore/orchestrator/core"
)

// Backoff computes the delay before attempt, where attempt is 1-indexed (the
// delay returned for attempt=1 is the wait before the first retry, i.e.
// immediately after the initial call failed). It implements
// min(initial_backoff * 2^(attempt-1), max_backoff), saturating at
// max_backoff instead of overflowing when the exponent would grow the value
// past what a time.Duration (int64 nanoseconds) can represent.
func Backoff(policy core.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := policy.InitialBackoff
	max := policy.MaxBackoff
	if initial <= 0 {
		return 0
	}
	if max <= 0 {
		max = initial
	}

	delay := initial
	for i := 0; i < attempt-1; i++ {
		if delay >= max || delay > max>>1 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

// Do executes fn, retrying while the error it returns is retryable per
// core.IsRetryable, up to policy.MaxAttempts total calls. A terminal error
// (core.IsTerminal) or any other non-retryable error is returned to the
// caller immediately without consuming further attempts. Between retries it
// sleeps for Backoff(policy, attempt), honoring ctx cancellation.
//
// fn receives the 1-indexed attempt number so callers can tag logs and
// lifecycle transitions (e.g. emitting one Retried transition per attempt,
// per the orchestration core's lifecycle contract) without keeping their own
// counter.
func Do(ctx context.Context, policy core.RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := Backoff(policy, attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry: %d attempts exhausted, last error %v: %w", maxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// Governor bounds the number of agent invocations in flight across the whole
// process at any moment, independent of which plan or task they belong to.
// It is a single process-wide semaphore shared by every dispatched task.
type Governor struct {
	sem chan struct{}
}

// NewGovernor builds a Governor with the given capacity. A non-positive
// maxInFlight falls back to 64, the orchestration core's documented default.
func NewGovernor(maxInFlight int) *Governor {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Governor{sem: make(chan struct{}, maxInFlight)}
}

// Acquire blocks until a slot is free or ctx is done. Every successful
// Acquire must be matched by a Release.
func (g *Governor) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot acquired by a prior successful Acquire.
func (g *Governor) Release() {
	<-g.sem
}

// InFlight reports how many slots are currently occupied.
func (g *Governor) InFlight() int {
	return len(g.sem)
}

// Capacity reports the Governor's total slot count.
func (g *Governor) Capacity() int {
	return cap(g.sem)
}
