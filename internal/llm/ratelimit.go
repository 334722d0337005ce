package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket rate limiter for controlling request rates
// to external APIs. It is safe for concurrent use because the underlying
// rate.Limiter is goroutine-safe for all operations.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// ratePerSecond is the sustained rate of requests per second.
// burst is the maximum burst size (number of tokens that can be consumed at once).
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow returns true if a request is allowed without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Tokens returns the current number of available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// RateLimitedCompleter gates every Complete call on a shared RateLimiter.
type RateLimitedCompleter struct {
	next    Completer
	limiter *RateLimiter
}

// NewRateLimitedCompleter wraps next. A nil limiter disables limiting.
func NewRateLimitedCompleter(next Completer, limiter *RateLimiter) *RateLimitedCompleter {
	return &RateLimitedCompleter{next: next, limiter: limiter}
}

// Complete waits for a token and delegates to the wrapped Completer.
func (c *RateLimitedCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", c.next.Provider(), err)
		}
	}
	return c.next.Complete(ctx, req)
}

// Provider returns the wrapped provider name.
func (c *RateLimitedCompleter) Provider() string { return c.next.Provider() }

// Model returns the wrapped model identifier.
func (c *RateLimitedCompleter) Model() string { return c.next.Model() }
