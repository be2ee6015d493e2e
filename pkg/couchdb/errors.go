package couchdb

import (
	"fmt"
	"net/http"
)

// Kind enumerates the error kinds in spec §7 and their outward mapping.
type Kind int

const (
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBadRequest
	KindUnsupportedSelector
	KindFunctionFailure
	KindUpstreamUnavailable
	KindPreconditionFailed
)

// Error is the proxy's error type. HTTP handlers map it to a status code
// and a CouchDB-shaped {error, reason} body; Unwrap exposes any wrapped
// lower-level error to errors.Is/As.
type Error struct {
	Kind    Kind
	Error_  string // wire "error" field, e.g. "not_found"
	Reason  string // wire "reason" field
	wrapped error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Error_, e.Reason)
	}
	return e.Error_
}

// Unwrap exposes a wrapped lower-level error (e.g. a Mongo driver error)
// for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// HTTPStatus returns the status code for this error per spec §7.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest, KindUnsupportedSelector:
		return http.StatusBadRequest
	case KindFunctionFailure:
		return http.StatusInternalServerError
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func newNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Error_: "not_found", Reason: fmt.Sprintf(format, args...)}
}

func newConflictError() *Error {
	return &Error{Kind: KindConflict, Error_: "conflict", Reason: "Document update conflict."}
}

// NewConflictError reports a write that lost an optimistic-concurrency
// race. Exported so callers outside this package (e.g. web's 412/409
// disambiguation) can recognise and rewrap it.
func NewConflictError() *Error {
	return newConflictError()
}

// NewPreconditionFailedError reports a revision mismatch detected via the
// If-Match request header, which CouchDB reports as 412 rather than the
// 409 a query-string/body rev mismatch gets (spec §12 supplement): the
// former is a stale client cache, the latter a genuine write race.
func NewPreconditionFailedError() *Error {
	return &Error{Kind: KindPreconditionFailed, Error_: "conflict", Reason: "Document update conflict."}
}

func newBadRequestError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Error_: "bad_request", Reason: fmt.Sprintf(format, args...)}
}

// NewUnsupportedSelectorError reports a Mango operator the translator
// does not implement (spec §4.5).
func NewUnsupportedSelectorError(op string) *Error {
	return &Error{Kind: KindUnsupportedSelector, Error_: "bad_request", Reason: fmt.Sprintf("unsupported operator %s", op)}
}

func newFunctionFailureError(message, stack string) *Error {
	reason := message
	if stack != "" {
		reason = message + "\n" + stack
	}
	return &Error{Kind: KindFunctionFailure, Error_: "function_error", Reason: reason}
}

// NewFunctionFailureError reports a map/reduce/update function that threw
// or otherwise failed during invocation (spec §4.3).
func NewFunctionFailureError(message, stack string) *Error {
	return newFunctionFailureError(message, stack)
}

func newUpstreamUnavailableError(err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Error_: "service_unavailable", Reason: fmt.Sprintf("upstream: %s", summarize(err)), wrapped: err}
}

// NewUpstreamUnavailableError reports a Mongo adapter failure that has
// exhausted its retry budget (spec §4.7/§7). Exported so HTTP handlers
// outside this package (e.g. database-admin routes, which talk to the
// Mongo adapter directly rather than through DocEngine) can wrap it the
// same way DocEngine does.
func NewUpstreamUnavailableError(err error) *Error {
	return newUpstreamUnavailableError(err)
}

func newInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Error_: "internal_server_error", Reason: "internal error", wrapped: err}
}

func summarize(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsNotFound reports whether err is a not-found Error.
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindNotFound
}

// IsConflict reports whether err is a conflict Error.
func IsConflict(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindConflict
}
