// Package resilience provides the backoff policy and bounded retry loop
// shared by the audio pipeline and the streaming session manager.
//
// Retry logic lives here as an explicit, data-driven loop rather than inside
// the components themselves, so attempt budgets and cancellation behave
// identically for device recovery and network reconnection and can be tested
// centrally.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned by [Retrier.Wait] when the attempt budget
// has been spent. Callers treat the component as terminally failed.
var ErrBudgetExhausted = errors.New("resilience: retry budget exhausted")

// Default backoff parameters.
const (
	defaultInitial     = 1 * time.Second
	defaultMax         = 30 * time.Second
	defaultMaxAttempts = 5
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the first retry. Doubles each attempt.
	// Defaults to 1s if zero.
	Initial time.Duration

	// Max caps the delay. Defaults to 30s if zero.
	Max time.Duration

	// MaxAttempts is the number of failures tolerated before
	// [ErrBudgetExhausted]. Defaults to 5 if zero.
	MaxAttempts int

	// Jitter spreads each delay by a multiplier drawn uniformly from
	// [1-Jitter, 1+Jitter]. Zero disables jitter.
	Jitter float64
}

func (p Policy) withDefaults() Policy {
	if p.Initial <= 0 {
		p.Initial = defaultInitial
	}
	if p.Max <= 0 {
		p.Max = defaultMax
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	return p
}

// Delay returns the backoff delay for the given zero-based attempt:
// min(Initial × 2^attempt, Max), spread by the jitter multiplier.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.Initial
	for i := 0; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		factor := 1 - p.Jitter + 2*p.Jitter*rand.Float64()
		d = time.Duration(float64(d) * factor)
	}
	return d
}

// Retrier drives a bounded retry loop. Components call [Retrier.Wait] after
// each failed attempt; Wait sleeps for the scheduled backoff delay or reports
// that the budget is spent. A successful attempt must be acknowledged with
// [Retrier.Reset] so that later failures start from a fresh budget.
//
// Safe for concurrent use.
type Retrier struct {
	policy Policy

	mu      sync.Mutex
	attempt int
}

// NewRetrier creates a [Retrier] with the given policy. Zero-value policy
// fields are replaced with defaults.
func NewRetrier(p Policy) *Retrier {
	return &Retrier{policy: p.withDefaults()}
}

// Attempt returns the number of failures recorded since the last Reset.
func (r *Retrier) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// Reset clears the failure count. Call after a successful attempt.
func (r *Retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt = 0
}

// Wait records a failed attempt and blocks for that attempt's backoff delay.
// It returns [ErrBudgetExhausted] without sleeping when the failure just
// recorded was the last one in the budget, or ctx.Err() if ctx is cancelled
// during the wait. A nil return means the caller should retry.
func (r *Retrier) Wait(ctx context.Context) error {
	r.mu.Lock()
	n := r.attempt
	r.attempt++
	exhausted := r.attempt >= r.policy.MaxAttempts
	r.mu.Unlock()

	if exhausted {
		return ErrBudgetExhausted
	}

	timer := time.NewTimer(r.policy.Delay(n))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
