// Package resilience classifies failures for the pipeline's retry policy and
// provides the backoff loop used around storage calls.
package resilience

import (
	"context"
	"errors"
	"strings"

	"go.temporal.io/sdk/temporal"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/llm"
)

// Category classifies errors into orchestrator-level categories that decide
// whether a stage attempt is retried, aborted or parked.
type Category int

const (
	// Transient failures are retried while the stage has attempts left.
	Transient Category = iota

	// Fatal failures abort the run regardless of remaining attempts.
	Fatal

	// Storage failures come from a persistence backend. They are retried with
	// backoff by the caller and never consume a stage attempt.
	Storage

	// Cancelled means the run was cancelled or the process is stopping.
	Cancelled
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Storage:
		return "storage"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// transientSubstrings are error message substrings that indicate a transient failure
// when the error is not already classified by a structured error type.
var transientSubstrings = []string{
	"timeout",
	"network",
	"connection refused",
	"connection reset",
	"rate limit",
	"rate_limit",
	"server_error",
	"service unavailable",
	"temporary",
	"deadline exceeded",
	"i/o timeout",
}

// fatalSubstrings indicate a failure that retrying cannot fix.
var fatalSubstrings = []string{
	"unauthorized",
	"authentication failed",
	"forbidden",
	"bad_request",
	"bad request",
	"invalid_input",
	"invalid request",
	"invalid parameter",
	"validation",
	"content_filter",
}

// Classify inspects err and returns its Category.
//
// Classification priority:
//  1. nil is Fatal (callers should not retry nil)
//  2. cancellation sentinels
//  3. domain sentinels (fatal, storage, transient, timeout)
//  4. structured LLM errors
//  5. Temporal ApplicationError
//  6. message substrings, transient first
//  7. default Transient
func Classify(err error) Category {
	if err == nil {
		return Fatal
	}

	if errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled) ||
		errors.Is(err, domain.ErrShuttingDown) {
		return Cancelled
	}

	if errors.Is(err, domain.ErrFatalStageFailure) || errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, domain.ErrInvalidTransition) {
		return Fatal
	}
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return Storage
	}
	if errors.Is(err, domain.ErrTransientStageFailure) || errors.Is(err, domain.ErrStageTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsTransient() {
			return Transient
		}
		return Fatal
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case ErrTypeFatal:
			return Fatal
		case ErrTypeStorage:
			return Storage
		case ErrTypeTransient, ErrTypeTimeout:
			return Transient
		}
		if appErr.NonRetryable() {
			return Fatal
		}
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range fatalSubstrings {
		if strings.Contains(msg, sub) {
			return Fatal
		}
	}

	return Transient
}

// Temporal ApplicationError types used when stage failures cross the
// activity boundary.
const (
	ErrTypeFatal     = "stage_fatal"
	ErrTypeTransient = "stage_transient"
	ErrTypeTimeout   = "stage_timeout"
	ErrTypeStorage   = "storage_unavailable"
)

// KindFor maps err to the StageErrorKind recorded in a StageResult.
// A Storage error inside a worker counts as transient for the stage.
func KindFor(err error) domain.StageErrorKind {
	if errors.Is(err, domain.ErrFatalStageFailure) {
		return domain.StageErrorFatal
	}
	if errors.Is(err, domain.ErrStageTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return domain.StageErrorTimeout
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == ErrTypeTimeout {
		return domain.StageErrorTimeout
	}
	switch Classify(err) {
	case Fatal:
		return domain.StageErrorFatal
	case Cancelled:
		return domain.StageErrorCancelled
	default:
		return domain.StageErrorTransient
	}
}
