// Package web is the HTTP front end: echo route registration, the
// CouchDB-shaped error mapping, and per-request correlation ids. It is an
// external collaborator of the core per spec §1 (routing, content
// negotiation are out of scope for the core itself), built the way the
// teacher's web package wires up echo handlers.
package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/couchmongo/bridge/pkg/couchdb"
	"github.com/couchmongo/bridge/pkg/logger"
	"github.com/couchmongo/bridge/pkg/metrics"
)

const requestIDHeader = "X-Request-Id"

// requestIDMiddleware assigns (or propagates) a correlation id and scopes
// a logger.Entry to it for the lifetime of the request, returning the id
// in the response header per spec §7 ("the id is returned in a response
// header").
func requestIDMiddleware(log *logger.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, id)
			c.Set("log", log.WithRequestID(id))
			c.Set("request_id", id)
			return next(c)
		}
	}
}

// metricsMiddleware records request latency and outcome through the
// wired Recorder.
func metricsMiddleware(rec metrics.Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			rec.ObserveRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start))
			return err
		}
	}
}

// errorHandler maps a couchdb.*Error to CouchDB's {error, reason} body
// and status code (spec §7); an echo.HTTPError keeps its own status code
// and message; anything else becomes a 500 with an opaque body so
// internal details never leak to the client.
func errorHandler(log *logger.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		reqLog := requestLogger(c, log)

		if cerr, ok := err.(*couchdb.Error); ok {
			reqLog.WithField("kind", cerr.Error_).Warnf("request failed: %s", cerr.Reason)
			writeJSONError(c, cerr.HTTPStatus(), cerr.Error_, cerr.Reason)
			return
		}

		if herr, ok := err.(*echo.HTTPError); ok {
			msg, _ := herr.Message.(string)
			writeJSONError(c, herr.Code, http.StatusText(herr.Code), msg)
			return
		}

		reqLog.WithField("error", err).Error("unhandled error")
		writeJSONError(c, http.StatusInternalServerError, "internal_server_error", "internal error")
	}
}

func writeJSONError(c echo.Context, status int, errName, reason string) {
	_ = c.JSON(status, map[string]string{"error": errName, "reason": reason})
}

// requestLogger fetches the per-request logger.Entry stashed by
// requestIDMiddleware, falling back to the process-wide one.
func requestLogger(c echo.Context, fallback *logger.Entry) *logger.Entry {
	if l, ok := c.Get("log").(*logger.Entry); ok && l != nil {
		return l
	}
	return fallback
}
