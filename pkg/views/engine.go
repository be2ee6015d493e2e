package views

import (
	"context"

	"github.com/couchmongo/bridge/pkg/couchdb"
)

// Engine composes ViewEngine and UpdateRunner into the single
// couchdb.ViewDelegate DocEngine expects to delegate view() and
// update_fn() calls to.
type Engine struct {
	*ViewEngine
	*UpdateRunner
}

// NewEngine wires a ViewEngine and an UpdateRunner over the same
// DesignRepo into one couchdb.ViewDelegate.
func NewEngine(viewEngine *ViewEngine, updateRunner *UpdateRunner) *Engine {
	return &Engine{ViewEngine: viewEngine, UpdateRunner: updateRunner}
}

var _ couchdb.ViewDelegate = (*Engine)(nil)

// View delegates to the embedded ViewEngine; restated here only to keep
// both interface methods visible next to each other for readers.
func (e *Engine) View(ctx context.Context, db, design, name string, opts couchdb.ViewOptions) (*couchdb.ViewResult, error) {
	return e.ViewEngine.View(ctx, db, design, name, opts)
}

// UpdateFn delegates to the embedded UpdateRunner.
func (e *Engine) UpdateFn(ctx context.Context, db, design, fn, id string, body map[string]interface{}, query map[string]string) (*couchdb.UpdateResult, error) {
	return e.UpdateRunner.UpdateFn(ctx, db, design, fn, id, body, query)
}
