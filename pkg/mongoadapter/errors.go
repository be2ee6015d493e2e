package mongoadapter

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrUpstreamUnavailable wraps the last transient error observed once the
// retry budget (three retries after the first call) is exhausted.
var ErrUpstreamUnavailable = errors.New("mongo adapter: upstream unavailable")

// ErrDuplicateKey reports a unique-index violation, surfaced distinctly
// from a generic write failure per spec §4.7.
var ErrDuplicateKey = errors.New("mongo adapter: duplicate key")

// ErrNoMatch reports that a conditional write (ReplaceOneIf) matched no
// document, the concurrency-conflict signal DocEngine maps to *conflict*.
var ErrNoMatch = errors.New("mongo adapter: no document matched")

// upstreamError wraps the underlying driver error so callers can still
// unwrap to it if they need the detail.
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUpstreamUnavailable, e.err)
}

func (e *upstreamError) Unwrap() error {
	return ErrUpstreamUnavailable
}

func wrapUpstream(err error) error {
	return &upstreamError{err: err}
}

// isDuplicateKey reports whether err is a MongoDB unique-index violation.
func isDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// isTransient reports whether err is the kind of network/timeout failure
// the adapter's retry loop should paper over, as opposed to a definite
// application-level outcome (duplicate key, validation error, ...).
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel("NetworkError") || cmdErr.HasErrorLabel("RetryableWriteError")
	}
	return false
}
