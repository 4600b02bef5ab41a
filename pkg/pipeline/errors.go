package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a subject, state or history row does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the subject changed between read and write.
	ErrConflict = errors.New("subject was modified concurrently")
	// ErrStorage wraps failures of the atomic unit of work.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// Outcome is the result class of a mutation that reached the engine.
type Outcome string

const (
	OutcomeApplied           Outcome = "applied"
	OutcomeNoChange          Outcome = "no_change"
	OutcomeValidationBlocked Outcome = "validation_blocked"
)

// Error codes carried by TransitionError.
const (
	CodeNoChange          = "NO_CHANGE"
	CodeValidationBlocked = "VALIDATION_BLOCKED"
)

// TransitionError is a structured error for a write the engine refused.
type TransitionError struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Alerts  []Alert `json:"alerts,omitempty"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

func notFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
}

func storageFailure(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidRequest) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
