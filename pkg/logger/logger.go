// Package logger wraps logrus with the field conventions used across the
// proxy: a namespace per component, and a request correlation id threaded
// through the request lifecycle.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	std = logrus.New()
)

// Fields is a shorthand for structured log fields.
type Fields = logrus.Fields

// Entry wraps a *logrus.Entry so call sites don't need to import logrus
// directly.
type Entry struct {
	*logrus.Entry
}

// Configure sets the global level and output of the shared logger. Every
// Entry points at that logger, so entries created before the call pick
// up the change as well.
func Configure(level string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	std.SetLevel(lvl)
	if out != nil {
		std.SetOutput(out)
	}
	std.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return nil
}

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
}

// WithNamespace returns an Entry scoped to a component name, e.g.
// "docengine", "viewengine", "mongoadapter".
func WithNamespace(ns string) *Entry {
	mu.RLock()
	defer mu.RUnlock()
	return &Entry{std.WithField("nspace", ns)}
}

// WithRequestID scopes an Entry to the correlation id of a single HTTP
// request, so every log line emitted while handling it can be grepped
// together and matched to the X-Request-Id response header.
func (e *Entry) WithRequestID(id string) *Entry {
	if id == "" {
		return e
	}
	return &Entry{e.Entry.WithField("request_id", id)}
}

// WithField is a passthrough kept so call sites can chain like
// logger.WithNamespace("couchdb").WithField("db", db).Infof(...).
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{e.Entry.WithField(key, value)}
}

// WithFields is the multi-field counterpart of WithField.
func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{e.Entry.WithFields(fields)}
}

// IsDebug reports whether the logger would emit a Debug-level line. Call
// sites use this to skip building an expensive log payload (e.g. dumping a
// full document body) when it would be dropped anyway.
func (e *Entry) IsDebug() bool {
	return e.Logger.IsLevelEnabled(logrus.DebugLevel)
}
