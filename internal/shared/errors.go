package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks a lifecycle action not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotEditable marks edits attempted outside the editable status.
	ErrNotEditable = errors.New("document not editable")
	// ErrDependency marks a failed call into the ledger or the financial store.
	ErrDependency = errors.New("dependency failure")
	// ErrPartialCompensation marks a compensation that could not reach the financial store.
	ErrPartialCompensation = errors.New("partial compensation failure")
	// ErrLocked occurs when another transition holds the document lock.
	ErrLocked = errors.New("document locked by another transition")
)

// ValidationError reports rejected input field by field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ValidationErrors aggregates several field failures.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, item := range e {
		if item.Field == "" {
			parts = append(parts, item.Reason)
			continue
		}
		parts = append(parts, item.Field+" "+item.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e ValidationErrors) Unwrap() error {
	return ErrValidation
}

// InvalidTransitionError is returned when an action does not apply to the current status.
type InvalidTransitionError struct {
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", ErrInvalidTransition, e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NotEditableError is returned when the draft editor touches a non-open document.
type NotEditableError struct {
	Status string
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("%s: status %s", ErrNotEditable, e.Status)
}

func (e *NotEditableError) Unwrap() error {
	return ErrNotEditable
}

// DependencyFailure wraps a ledger or financial store failure. The transition was
// rolled back and compensated, so the caller may retry.
type DependencyFailure struct {
	Dependency string
	Err        error
	Retryable  bool
}

func (e *DependencyFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDependency, e.Dependency, e.Err)
}

func (e *DependencyFailure) Unwrap() []error {
	return []error{ErrDependency, e.Err}
}

// PartialCompensationFailure means remote entries of a failed attempt may still be live.
// It needs manual reconciliation.
type PartialCompensationFailure struct {
	AttemptID  string
	DocumentID int64
	Cause      error
	Err        error
}

func (e *PartialCompensationFailure) Error() string {
	return fmt.Sprintf("%s: attempt %s document %d: %v (original: %v)", ErrPartialCompensation, e.AttemptID, e.DocumentID, e.Err, e.Cause)
}

func (e *PartialCompensationFailure) Unwrap() []error {
	return []error{ErrPartialCompensation, e.Err}
}
