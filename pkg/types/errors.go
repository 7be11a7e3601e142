package types

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the failure taxonomy of the engine.
type ErrorKind string

const (
	ErrRepositoryUnavailable ErrorKind = "repository_unavailable"
	ErrRepositoryAuth        ErrorKind = "repository_auth"
	ErrGuardrailViolation    ErrorKind = "guardrail_violation"
	ErrPatchConflict         ErrorKind = "patch_conflict"
	ErrTestFailure           ErrorKind = "test_failure"
	ErrTimedOut              ErrorKind = "timed_out"
	ErrPlannerUnavailable    ErrorKind = "planner_unavailable"
	ErrCancelled             ErrorKind = "cancelled"
	ErrInternal              ErrorKind = "internal"
)

// EngineError is a typed failure surfaced to callers. Phase names the state
// machine phase that failed and Files lists the implicated paths.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Phase   JobState
	Files   []string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewError creates an EngineError with the given kind and formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err with a kind and formatted message, preserving the
// chain for errors.Is/As.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithPhase annotates the error with the failing state machine phase.
func (e *EngineError) WithPhase(phase JobState) *EngineError {
	e.Phase = phase
	return e
}

// WithFiles annotates the error with the implicated file paths.
func (e *EngineError) WithFiles(files ...string) *EngineError {
	e.Files = append(e.Files, files...)
	return e
}

// KindOf extracts the ErrorKind from an error chain, or ErrInternal when the
// chain carries no EngineError.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrInternal
}

// IsKind reports whether the error chain carries an EngineError of the given
// kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
