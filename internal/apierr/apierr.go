// Package apierr defines the error taxonomy shared across components. Only
// the HTTP Edge inspects Kind; every other package returns or wraps an
// *Error and otherwise treats errors opaquely.
package apierr

import "fmt"

// Kind is a class of failure, not a concrete error type. It drives the HTTP
// Edge's status-code mapping and nothing else.
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
	NotReady   Kind = "not_ready"
	Timeout    Kind = "timeout"
	Upstream   Kind = "upstream"
	Internal   Kind = "internal"
)

// Error is a typed, user-facing failure. Message is safe to render verbatim
// to the UI; Err, if present, carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a client-input rejection (maps to HTTP 400).
func Validationf(format string, args ...any) *Error { return newf(Validation, format, args...) }

// NotFoundf builds a missing-resource error (maps to HTTP 404).
func NotFoundf(format string, args ...any) *Error { return newf(NotFound, format, args...) }

// Conflictf builds a state-precondition error (maps to HTTP 409).
func Conflictf(format string, args ...any) *Error { return newf(Conflict, format, args...) }

// NotReadyf builds a "no artifact generation yet" error (maps to HTTP 503).
func NotReadyf(format string, args ...any) *Error { return newf(NotReady, format, args...) }

// Timeoutf builds a deadline-exceeded error (maps to HTTP 504).
func Timeoutf(format string, args ...any) *Error { return newf(Timeout, format, args...) }

// Upstreamf wraps a failure from an external library or subprocess, keeping
// the original message (maps to HTTP 500).
func Upstreamf(cause error, format string, args ...any) *Error {
	e := newf(Upstream, format, args...)
	e.Err = cause
	return e
}

// Internalf builds a bug-class failure (maps to HTTP 500).
func Internalf(cause error, format string, args ...any) *Error {
	e := newf(Internal, format, args...)
	e.Err = cause
	return e
}

// KindOf extracts the Kind from err, walking Unwrap chains. Unrecognized
// errors are reported as Internal so the HTTP Edge never leaks a 200 for a
// failure it didn't expect.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Kind
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return Internal
}
