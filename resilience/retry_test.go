package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentcore/orchestrator/core"
)

func policy(maxAttempts int, initial, max time.Duration) core.RetryPolicy {
	return core.RetryPolicy{
		Timeout:        time.Second,
		MaxAttempts:    maxAttempts,
		InitialBackoff: initial,
		MaxBackoff:     max,
	}
}

func TestBackoffExponentialGrowth(t *testing.T) {
	p := policy(5, 100*time.Millisecond, 5*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		got := Backoff(p, tt.attempt)
		if got != tt.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffSaturatesAtMax(t *testing.T) {
	p := policy(10, 100*time.Millisecond, 1*time.Second)

	// 100ms * 2^9 would be 51.2s without saturation; it must clamp to MaxBackoff.
	got := Backoff(p, 10)
	if got != p.MaxBackoff {
		t.Errorf("Backoff(attempt=10) = %v, want saturated %v", got, p.MaxBackoff)
	}
}

func TestBackoffNeverOverflows(t *testing.T) {
	p := policy(1000, time.Nanosecond, 5*time.Second)

	// A huge attempt count must saturate rather than wrap into a negative
	// duration via integer overflow.
	got := Backoff(p, 1000)
	if got != p.MaxBackoff {
		t.Errorf("Backoff(attempt=1000) = %v, want saturated %v", got, p.MaxBackoff)
	}
	if got < 0 {
		t.Fatalf("Backoff returned negative duration: %v", got)
	}
}

func TestBackoffZeroInitial(t *testing.T) {
	p := policy(3, 0, time.Second)
	if got := Backoff(p, 2); got != 0 {
		t.Errorf("Backoff with zero InitialBackoff = %v, want 0", got)
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	p := policy(3, time.Millisecond, 10*time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	p := policy(3, time.Millisecond, 10*time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return core.ErrTimeout
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnTerminalError(t *testing.T) {
	p := policy(5, time.Millisecond, 10*time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return core.ErrInvalidRequest
	})
	if !errors.Is(err, core.ErrInvalidRequest) {
		t.Errorf("Do() error = %v, want core.ErrInvalidRequest", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (terminal errors must not retry)", calls)
	}
}

func TestDoStopsOnActionNotSupported(t *testing.T) {
	p := policy(5, time.Millisecond, 10*time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return core.ErrActionNotSupported
	})
	if !errors.Is(err, core.ErrActionNotSupported) {
		t.Errorf("Do() error = %v, want core.ErrActionNotSupported", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsRetryableError(t *testing.T) {
	p := policy(3, time.Millisecond, 5*time.Millisecond)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return core.ErrBackendFailure
	})
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Do() error = %v, want wrapping ErrMaxRetriesExceeded", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := policy(10, 50*time.Millisecond, 100*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		calls++
		return core.ErrTimeout
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls == 0 || calls >= 10 {
		t.Errorf("calls = %d, want a partial attempt count", calls)
	}
}

func TestDoPassesAttemptNumber(t *testing.T) {
	p := policy(3, time.Millisecond, 5*time.Millisecond)
	var seen []int
	_ = Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		return core.ErrTimeout
	})
	want := []int{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("attempts seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("attempt[%d] = %d, want %d", i, seen[i], want[i])
		}
	}
}

func TestGovernorBoundsConcurrency(t *testing.T) {
	g := NewGovernor(2)
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if g.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", g.InFlight())
	}

	var acquired int32
	done := make(chan struct{})
	go func() {
		blockCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		if err := g.Acquire(blockCtx); err == nil {
			atomic.AddInt32(&acquired, 1)
			g.Release()
		}
		close(done)
	}()

	<-done
	if atomic.LoadInt32(&acquired) != 0 {
		t.Error("third Acquire succeeded while Governor was at capacity")
	}

	g.Release()
	g.Release()
	if g.InFlight() != 0 {
		t.Errorf("InFlight() after releases = %d, want 0", g.InFlight())
	}
}

func TestGovernorDefaultCapacity(t *testing.T) {
	g := NewGovernor(0)
	if g.Capacity() != 64 {
		t.Errorf("Capacity() = %d, want default 64", g.Capacity())
	}
}

func TestGovernorAcquireRespectsContext(t *testing.T) {
	g := NewGovernor(1)
	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	blockCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := g.Acquire(blockCtx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}
