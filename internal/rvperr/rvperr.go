// Package rvperr implements the error-kind taxonomy the session
// driver and backends classify failures into, generalizing a
// VideoError{Operation, Details, Err} shape into a Kind-tagged type
// that errors.Is/errors.As can match against.
package rvperr

import "fmt"

// Kind classifies a failure for the purposes of session-abort
// reporting and propagation policy.
type Kind int

const (
	// Transient is a temporary, per-frame failure; the frame is
	// dropped and the session continues.
	Transient Kind = iota
	// NotFound means the upstream could not be reached after retries.
	NotFound
	// UpstreamError covers connection reset, protocol error, or
	// malformed data from the remote side.
	UpstreamError
	// ServerError is a local misconfiguration.
	ServerError
	// Fatal covers allocation or setup failures the caller must
	// escalate; the operation that detected it returns no result.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case NotFound:
		return "not_found"
	case UpstreamError:
		return "upstream_error"
	case ServerError:
		return "server_error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Status is the abort status code surfaced to the outbound channel
// for every hard failure kind.
func (k Kind) Status() string {
	switch k {
	case NotFound:
		return "UPSTREAM_NOT_FOUND"
	case UpstreamError:
		return "UPSTREAM_ERROR"
	case ServerError:
		return "SERVER_ERROR"
	default:
		return ""
	}
}

// Error is the single error type used across the core. Op names the
// operation being attempted when the failure occurred.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, rvperr.Sentinel(rvperr.NotFound)) match by
// Kind without requiring identical Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel returns a comparable *Error for use with errors.Is, e.g.
// errors.Is(err, rvperr.Sentinel(rvperr.NotFound)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }
