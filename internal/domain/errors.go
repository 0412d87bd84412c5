package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session has no stored state or chart.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStateMissingChart marks a session whose chart vanished unexpectedly.
	ErrStateMissingChart = errors.New("session has no chart")
	// ErrChartUnavailable marks an outage of the chart calculator.
	ErrChartUnavailable = errors.New("chart calculator unavailable")
	// ErrStoreUnavailable marks a session store read that failed.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrLocationNotFound is returned when the birth place cannot be geocoded.
	ErrLocationNotFound = errors.New("location not found")
)

// InputError is a caller fault: malformed birth data or an unresolvable
// birth place. It is the only error class that aborts a turn.
type InputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	switch {
	case e.Field != "" && e.Reason != "":
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "invalid input"
	}
}

func (e *InputError) Unwrap() error { return e.Err }

// NewInputError wraps err as an InputError unless it already is one.
func NewInputError(field, reason string, err error) error {
	var ie *InputError
	if errors.As(err, &ie) {
		return err
	}
	return &InputError{Field: field, Reason: reason, Err: err}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// DependencyError wraps a failed call to a model, index or other
// collaborator. Components absorb it and fall back to a safe default.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
