package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrTransientStageFailure indicates a stage failed in a way that may succeed on retry
	// (network error, provider 5xx/429, timeout).
	ErrTransientStageFailure = errors.New("transient stage failure")

	// ErrFatalStageFailure indicates a stage failed with an unrecoverable input error.
	// The run is aborted without retry.
	ErrFatalStageFailure = errors.New("fatal stage failure")

	// ErrStageTimeout indicates a stage call exceeded its per-stage budget.
	// It is treated as a transient failure.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrInvalidTransition indicates a transition was requested that the state
	// machine does not define, such as any transition out of a terminal stage.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStorageUnavailable indicates a checkpoint or content store I/O failure.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrDimensionMismatch indicates an embedding does not match the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrShuttingDown indicates the orchestrator no longer accepts work.
	ErrShuttingDown = errors.New("orchestrator shutting down")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError provides details about a duplicate entity.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// StageErrorKind classifies a stage failure for the retry policy.
type StageErrorKind string

const (
	StageErrorTransient StageErrorKind = "transient"
	StageErrorFatal     StageErrorKind = "fatal"
	StageErrorTimeout   StageErrorKind = "timeout"
	StageErrorCancelled StageErrorKind = "cancelled"
)

// StageError describes a failed stage attempt.
type StageError struct {
	Stage   Stage
	Attempt int
	Kind    StageErrorKind
	Err     error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage %s attempt %d: %s failure", e.Stage, e.Attempt, e.Kind)
	}
	return fmt.Sprintf("stage %s attempt %d: %s failure: %v", e.Stage, e.Attempt, e.Kind, e.Err)
}

// Unwrap returns both the kind sentinel and the cause so that errors.Is
// matches either.
func (e *StageError) Unwrap() []error {
	var kind error
	switch e.Kind {
	case StageErrorFatal:
		kind = ErrFatalStageFailure
	case StageErrorTimeout:
		kind = ErrStageTimeout
	case StageErrorCancelled:
		kind = ErrCancelled
	default:
		kind = ErrTransientStageFailure
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

// IsFatal reports whether the failure must not be retried.
func (e *StageError) IsFatal() bool {
	return e.Kind == StageErrorFatal || e.Kind == StageErrorCancelled
}

// StorageError wraps an I/O failure from a persistence backend.
type StorageError struct {
	Store string
	Op    string
	Err   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store %s: %v", e.Store, e.Op, e.Err)
}

// Unwrap returns the storage sentinel and the cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewTransientError wraps err as a retryable stage failure.
func NewTransientError(stage Stage, attempt int, err error) *StageError {
	return &StageError{Stage: stage, Attempt: attempt, Kind: StageErrorTransient, Err: err}
}

// NewFatalError wraps err as a non-retryable stage failure.
func NewFatalError(stage Stage, attempt int, err error) *StageError {
	return &StageError{Stage: stage, Attempt: attempt, Kind: StageErrorFatal, Err: err}
}

// NewTimeoutError records a stage attempt that exceeded its budget.
func NewTimeoutError(stage Stage, attempt int, err error) *StageError {
	return &StageError{Stage: stage, Attempt: attempt, Kind: StageErrorTimeout, Err: err}
}

// NewStorageError wraps a backend failure.
func NewStorageError(store, op string, err error) *StorageError {
	return &StorageError{Store: store, Op: op, Err: err}
}

// Fatal marks err as an unrecoverable input error. Worker adapters return it
// when retrying cannot help.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFatalStageFailure, err)
}
