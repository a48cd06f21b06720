package session

import (
	"errors"
	"fmt"
)

// AllocationError is returned by GetSession when the backend could not build a session.
type AllocationError struct {
	Backend string
	Err     error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("%s: failed to allocate session: %v", e.Backend, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// CloseError is returned by Close when tearing down an open session failed.
// The holder is considered closed regardless.
type CloseError struct {
	Backend string
	Err     error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("%s: failed to close session: %v", e.Backend, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// IsAllocationError reports whether err wraps an *AllocationError.
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}

// IsCloseError reports whether err wraps a *CloseError.
func IsCloseError(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce)
}
