package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// maxRetryAfter caps the wait honored from a provider's Retry-After header.
const maxRetryAfter = 30 * time.Second

// APIError is a failed provider call. StatusCode 0 means no HTTP response was
// received.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	// Type and Code are the provider's own error classification, when sent.
	Type string
	Code string
	// RetryAfter is the provider's requested back-off, when sent.
	RetryAfter time.Duration

	cause error
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap returns the transport error behind a network failure, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is lets stage code test provider failures against the stage sentinels:
// transient errors match domain.ErrTransientStageFailure, everything else
// domain.ErrFatalStageFailure.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrTransientStageFailure:
		return e.IsTransient()
	case domain.ErrFatalStageFailure:
		return !e.IsTransient()
	}
	return false
}

// IsTransient reports whether retrying may succeed: network failures,
// request timeouts, rate limiting and server errors.
func (e *APIError) IsTransient() bool {
	switch {
	case e.StatusCode == 0,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	}
	return false
}

func isTransientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}

// networkError wraps a transport failure as a transient APIError.
func networkError(provider, format string, err error) *APIError {
	return &APIError{
		Provider: provider,
		Message:  fmt.Sprintf(format, err),
		Type:     "network_error",
		cause:    err,
	}
}

// parseRetryAfter reads a Retry-After header given in seconds. HTTP dates and
// malformed values yield zero.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// withRetry calls fn until it succeeds, fails with a non-transient error or
// maxRetries retries are spent. Retry n waits base*2^(n-1), or the provider's
// Retry-After when that is longer.
func withRetry(ctx context.Context, provider string, maxRetries int, base time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := base * time.Duration(1<<(attempt-1))
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > delay {
				delay = apiErr.RetryAfter
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context cancelled during retry wait: %w", provider, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s: exhausted %d retries: %w", provider, maxRetries, lastErr)
}
