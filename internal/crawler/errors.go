package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointNotFound is returned when no candidate entry URL verifies.
	ErrEndpointNotFound = errors.New("no working entry URL found")

	// ErrNavigationFailed is returned when the filtered view could not be reached.
	ErrNavigationFailed = errors.New("could not reach filtered view")

	// ErrBlocked is recorded on a pair that stopped on a blocking page.
	ErrBlocked = errors.New("blocked by target site")
)

// PairError is a failure of one (target, filter) pair.
type PairError struct {
	Target string
	Filter string
	Op     string
	Cause  error
}

func (e *PairError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pair %s/%s: %s: %v", e.Target, e.Filter, e.Op, e.Cause)
	}
	return fmt.Sprintf("pair %s/%s: %s", e.Target, e.Filter, e.Op)
}

func (e *PairError) Unwrap() error {
	return e.Cause
}

// ResolveError reports why a target's entry URL could not be resolved.
type ResolveError struct {
	Target     string
	Candidates int
	Cause      error
}

func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("resolve %s: %d candidates tried", e.Target, e.Candidates)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ResolveError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrEndpointNotFound, e.Cause}
	}
	return []error{ErrEndpointNotFound}
}
