package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_DelayIsMonotonicAndCapped(t *testing.T) {
	t.Parallel()

	p := Policy{Initial: 1 * time.Second, Max: 30 * time.Second, MaxAttempts: 10}

	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v, smaller than previous %v", attempt, d, prev)
		}
		if d > 30*time.Second {
			t.Errorf("Delay(%d) = %v, exceeds 30s cap", attempt, d)
		}
		prev = d
	}

	if got := p.Delay(0); got != 1*time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
	if got := p.Delay(2); got != 4*time.Second {
		t.Errorf("Delay(2) = %v, want 4s", got)
	}
	if got := p.Delay(20); got != 30*time.Second {
		t.Errorf("Delay(20) = %v, want 30s cap", got)
	}
}

func TestPolicy_JitterStaysWithinBounds(t *testing.T) {
	t.Parallel()

	p := Policy{Initial: 1 * time.Second, Max: 30 * time.Second, MaxAttempts: 5, Jitter: 0.25}

	for i := 0; i < 200; i++ {
		d := p.Delay(0)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("jittered Delay(0) = %v, want within [750ms, 1250ms]", d)
		}
	}
}

func TestRetrier_BudgetExhaustion(t *testing.T) {
	t.Parallel()

	r := NewRetrier(Policy{Initial: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3})
	ctx := context.Background()

	// Two failures are retried, the third spends the budget.
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait #1 = %v, want nil", err)
	}
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait #2 = %v, want nil", err)
	}
	if err := r.Wait(ctx); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("Wait #3 = %v, want ErrBudgetExhausted", err)
	}
	if got := r.Attempt(); got != 3 {
		t.Errorf("Attempt = %d, want 3", got)
	}
}

func TestRetrier_ResetRestoresBudget(t *testing.T) {
	t.Parallel()

	r := NewRetrier(Policy{Initial: time.Millisecond, Max: time.Millisecond, MaxAttempts: 2})
	ctx := context.Background()

	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v, want nil", err)
	}
	r.Reset()
	if got := r.Attempt(); got != 0 {
		t.Errorf("Attempt after Reset = %d, want 0", got)
	}
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait after Reset = %v, want nil", err)
	}
}

func TestRetrier_WaitHonoursCancellation(t *testing.T) {
	t.Parallel()

	r := NewRetrier(Policy{Initial: 10 * time.Second, Max: 10 * time.Second, MaxAttempts: 5})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Wait = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}
