package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Backoff is an exponential retry schedule:
// delay(n) = min(Initial * Multiplier^(n-1), Max) for retry n >= 1.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoff returns the storage retry schedule used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     200 * time.Millisecond,
		Max:         5 * time.Second,
		Multiplier:  2,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before retry n (1-indexed).
func (b Backoff) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(retry-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns an error that is not a Storage
// error, or MaxAttempts calls have been made. onRetry, when non-nil, is called
// before each wait with the retry number and the error that caused it.
// Waiting stops early when ctx is done.
func Retry(ctx context.Context, b Backoff, onRetry func(retry int, err error), fn func(ctx context.Context) error) error {
	attempts := b.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if Classify(err) != Storage || attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (retry aborted: %w)", err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
