// Package nslcderr defines the closed set of result kinds the server-side
// pipeline maps every failure onto before it crosses a component boundary.
package nslcderr

import (
	"errors"
	"fmt"
)

// Status is one of the kinds described in spec §7. The LDAP pool, search and
// handlers map directory errors onto these; the protocol codec returns plain
// errors wrapping protocol.ErrMalformed, which StatusOf reports as Internal.
type Status int

const (
	// Success covers size-limit/time-limit truncation as well as a clean result.
	Success Status = iota
	NotFound
	TryAgain
	Unavailable
	PermissionDenied
	ProtocolError
	Internal
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NotFound:
		return "not found"
	case TryAgain:
		return "try again"
	case Unavailable:
		return "unavailable"
	case PermissionDenied:
		return "permission denied"
	case ProtocolError:
		return "protocol error"
	case Internal:
		return "internal error"
	default:
		return "unknown status"
	}
}

// Error wraps an underlying cause with one of the Status kinds.
type Error struct {
	Status Status
	Op     string // component/operation that produced the error, e.g. "ldappool.bind"
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(op string, status Status, err error) *Error {
	return &Error{Op: op, Status: status, Err: err}
}

// StatusOf extracts the Status from err, defaulting to Internal when err does
// not wrap an *Error.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}

	return Internal
}
