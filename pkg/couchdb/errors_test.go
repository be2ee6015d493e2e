package couchdb

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err      *Error
		expected int
	}{
		{newNotFoundError("missing"), http.StatusNotFound},
		{newConflictError(), http.StatusConflict},
		{newBadRequestError("bad"), http.StatusBadRequest},
		{NewUnsupportedSelectorError("$where"), http.StatusBadRequest},
		{NewFunctionFailureError("boom", ""), http.StatusInternalServerError},
		{NewUpstreamUnavailableError(errors.New("timeout")), http.StatusServiceUnavailable},
		{newInternalError(errors.New("x")), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, c.err.HTTPStatus(), "kind %v", c.err.Kind)
	}
}

func TestIsNotFoundAndIsConflict(t *testing.T) {
	assert.True(t, IsNotFound(newNotFoundError("x")))
	assert.False(t, IsNotFound(newConflictError()))
	assert.True(t, IsConflict(newConflictError()))
	assert.False(t, IsConflict(newNotFoundError("x")))
	assert.False(t, IsNotFound(errors.New("not a couchdb error")))
}

func TestFunctionFailureReasonIncludesStack(t *testing.T) {
	err := NewFunctionFailureError("boom", "at line 1")
	assert.Contains(t, err.Reason, "boom")
	assert.Contains(t, err.Reason, "at line 1")
}

func TestErrorUnwrapExposesWrapped(t *testing.T) {
	wrapped := errors.New("driver error")
	err := NewUpstreamUnavailableError(wrapped)
	assert.Equal(t, wrapped, errors.Unwrap(err))
}
