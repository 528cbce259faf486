package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Retrier runs an operation under a Policy. The loop is bounded by
// Policy.Attempts; the attempt number is carried explicitly.
type Retrier struct {
	Policy Policy
	Clock  clockwork.Clock
	// ShouldRetry decides whether err is worth another try. Nil retries every error.
	ShouldRetry func(err error) bool
	// OnRetry is called before sleeping; attempt is the 1-based try that failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy is
// exhausted, or ctx is done. The last error is returned unchanged.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := r.Policy.Attempts()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || (r.ShouldRetry != nil && !r.ShouldRetry(err)) {
			return err
		}
		delay := r.Policy.Delay(attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, err)
		}
		if err := Sleep(ctx, clock, delay); err != nil {
			return err
		}
	}
	return err
}

// Sleep waits for d on clock, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 || ctx.Err() != nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
