/*
errors.go - Centralized error types for the assignment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Structured errors carry the detail a caller needs to correct input and
  unwrap to a sentinel so callers can branch with errors.Is.

ERROR CATEGORIES:
  1. Validation errors - Rejected before anything is persisted
  2. Progress errors - Percent outside [0,100], nothing mutated
  3. Transition errors - Lifecycle event not allowed from current state
  4. Store errors - Persistence boundary failures, surfaced verbatim

PARTIAL BATCHES:
  A multi-request assign can succeed for some requests and fail for others.
  Each failure is a *RequestError; Partial is true when the batch row was
  committed but its progress rows were not. The engine never heals this.

SEE ALSO:
  - builder.go: Raises ValidationError
  - progress.go: Raises InvalidProgressError
  - lifecycle.go: Raises InvalidTransitionError
  - coordinator.go: Produces RequestError
*/
package assignment

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the sentinel behind every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidProgress is returned when a percent is outside [0,100].
	ErrInvalidProgress = errors.New("invalid progress")

	// ErrInvalidTransition is returned when a lifecycle event is not allowed
	// from the batch's current state (e.g. cancelling an expired batch).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrBatchNotFound is returned when a referenced batch doesn't exist.
	ErrBatchNotFound = errors.New("batch assignment not found")

	// ErrProgressNotFound is returned when a referenced progress row doesn't exist.
	ErrProgressNotFound = errors.New("individual progress not found")

	// ErrDuplicateProgress is returned when a progress row already exists for
	// a (batch, recipient) pair.
	ErrDuplicateProgress = errors.New("progress row already exists for recipient")

	// ErrConcurrentModification is returned when a guarded state write finds
	// the batch no longer in the expected state.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAtomicUnavailable is returned by a store whose atomic creation path
	// cannot run. It is the only error that makes the coordinator fall back
	// to the manual two-step write.
	ErrAtomicUnavailable = errors.New("atomic batch creation unavailable")

	// ErrNotAuthorized is returned when the caller may not assign plans.
	ErrNotAuthorized = errors.New("caller not authorized to assign")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BatchLevel is the Index of a ValidationError that concerns the whole batch
// rather than one request.
const BatchLevel = -1

// ValidationError names the offending request and field.
type ValidationError struct {
	Index   int    // request index, or BatchLevel
	Field   string // e.g. "plan_id", "duration_days", "recipients"
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index == BatchLevel {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: request %d: %s: %s", e.Index, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidProgressError reports a percent outside [0,100].
type InvalidProgressError struct {
	Percent int
}

func (e *InvalidProgressError) Error() string {
	return fmt.Sprintf("invalid progress: %d is outside [0,100]", e.Percent)
}

func (e *InvalidProgressError) Unwrap() error {
	return ErrInvalidProgress
}

// InvalidTransitionError reports a lifecycle event rejected by the batch's state.
type InvalidTransitionError struct {
	BatchID BatchID
	From    BatchState
	Event   BatchEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s batch %s: state is %s", e.Event, e.BatchID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// RequestError is the failure of one request inside an assign call.
type RequestError struct {
	Index   int
	BatchID BatchID // set when the batch row was committed
	Partial bool    // batch row committed, progress rows missing
	Err     error
}

func (e *RequestError) Error() string {
	if e.Partial {
		return fmt.Sprintf("request %d: batch %s created without progress rows: %v", e.Index, e.BatchID, e.Err)
	}
	return fmt.Sprintf("request %d: %v", e.Index, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidProgress)
}

// IsConflict returns true if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrProgressNotFound)
}
