package web

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/couchmongo/bridge/pkg/couchdb"
)

func newTestContext(method, target string, headers map[string]string) echo.Context {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestRevFromRequestQueryParamTakesPrecedence(t *testing.T) {
	c := newTestContext(http.MethodPut, "/db/doc1?rev=1-aaaa", map[string]string{"If-Match": `"2-bbbb"`})
	rev, fromIfMatch := revFromRequest(c)
	assert.Equal(t, "1-aaaa", rev)
	assert.False(t, fromIfMatch)
}

func TestRevFromRequestFallsBackToIfMatch(t *testing.T) {
	c := newTestContext(http.MethodPut, "/db/doc1", map[string]string{"If-Match": `"3-cccc"`})
	rev, fromIfMatch := revFromRequest(c)
	assert.Equal(t, "3-cccc", rev)
	assert.True(t, fromIfMatch)
}

func TestRevFromRequestEmptyWhenNeitherPresent(t *testing.T) {
	c := newTestContext(http.MethodPut, "/db/doc1", nil)
	rev, fromIfMatch := revFromRequest(c)
	assert.Empty(t, rev)
	assert.False(t, fromIfMatch)
}

func TestTranslatePreconditionFailedRewritesIfMatchConflict(t *testing.T) {
	conflict := couchdb.NewConflictError()
	got := translatePreconditionFailed(conflict, true)
	assert.Equal(t, http.StatusPreconditionFailed, got.(*couchdb.Error).HTTPStatus())
}

func TestTranslatePreconditionFailedLeavesQuerySourcedConflictAlone(t *testing.T) {
	// A conflict whose rev came from the query string (not If-Match) must
	// stay 409, never 412.
	conflict := couchdb.NewConflictError()
	got := translatePreconditionFailed(conflict, false)
	assert.Equal(t, http.StatusConflict, got.(*couchdb.Error).HTTPStatus())
}

func TestTranslatePreconditionFailedIgnoresNonConflictErrors(t *testing.T) {
	notAConflict := couchdb.NewUpstreamUnavailableError(errors.New("x"))
	got := translatePreconditionFailed(notAConflict, true)
	assert.Equal(t, http.StatusServiceUnavailable, got.(*couchdb.Error).HTTPStatus())
}

func TestNewPreconditionFailedErrorIs412(t *testing.T) {
	err := couchdb.NewPreconditionFailedError()
	assert.Equal(t, http.StatusPreconditionFailed, err.HTTPStatus())
}
