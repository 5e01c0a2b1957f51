package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProbeUnavailable means the foreground probe could not answer.
	ErrProbeUnavailable = errors.New("foreground probe unavailable")

	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrPersistence wraps storage failures surfaced to callers.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a guarded write found the row in an unexpected state.
	ErrConflict = errors.New("concurrent modification")

	// ErrTooShort means a session cannot complete yet; interrupt it instead.
	ErrTooShort = errors.New("session too short to complete")
)

// InvalidTransitionError describes a rejected session action.
type InvalidTransitionError struct {
	State  SessionStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s session: current state is %s", e.Action, e.State)
}

// Unwrap makes errors.Is(err, ErrInvalidTransition) hold.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewInvalidTransition builds an *InvalidTransitionError.
func NewInvalidTransition(state SessionStatus, action string) error {
	return &InvalidTransitionError{State: state, Action: action}
}
