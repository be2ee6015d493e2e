package couchdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/couchmongo/bridge/pkg/couchdb/mango"
	"github.com/couchmongo/bridge/pkg/logger"
	"github.com/couchmongo/bridge/pkg/mongoadapter"
)

// mongoStore is the narrow surface DocEngine needs from the Mongo
// adapter. Declaring it here (rather than depending on *mongoadapter.Adapter
// directly) keeps DocEngine testable against a fake.
type mongoStore interface {
	FindOne(ctx context.Context, collection string, filter bson.M, out interface{}) error
	FindStream(ctx context.Context, collection string, filter bson.M, opts ...*options.FindOptions) (*mongo.Cursor, error)
	InsertOne(ctx context.Context, collection string, doc interface{}) error
	ReplaceOneIf(ctx context.Context, collection string, filter bson.M, replacement interface{}) error
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
}

// ViewDelegate is the subset of ViewEngine/update-function behaviour
// DocEngine.view and DocEngine.update_fn delegate to. Defined here (not in
// package views) to avoid an import cycle: views depends on couchdb for
// Doc/JSONDoc, so couchdb cannot depend back on views.
type ViewDelegate interface {
	View(ctx context.Context, db, design, name string, opts ViewOptions) (*ViewResult, error)
	UpdateFn(ctx context.Context, db, design, fn, id string, body map[string]interface{}, query map[string]string) (*UpdateResult, error)
}

// ViewOptions mirrors spec §4.4's option table.
type ViewOptions struct {
	Reduce        *bool
	Group         bool
	GroupLevel    int
	IncludeDocs   bool
	Descending    bool
	Limit         int
	Skip          int
	StartKey      interface{}
	EndKey        interface{}
	StartKeyDocID string
	EndKeyDocID   string
	Keys          []interface{}
}

// ViewResult is the response shape of DocEngine.view.
type ViewResult struct {
	TotalRows *int                     `json:"total_rows,omitempty"`
	Offset    int                      `json:"offset"`
	Rows      []map[string]interface{} `json:"rows"`
}

// UpdateResult is the response shape of DocEngine.update_fn: a status
// code, a body, and whether a new document revision was written.
type UpdateResult struct {
	StatusCode int
	Body       []byte
	ContentType string
	Wrote       bool
	NewRev      string
}

// DocEngine is the outward contract of the proxy (spec §4.6): CRUD with
// revision checks, bulk operations, conflict reporting, and the find/view
// delegation points.
type DocEngine struct {
	store mongoStore
	views ViewDelegate
	log   *logger.Entry
}

// NewDocEngine builds a DocEngine over the given Mongo adapter and view
// delegate. views may be nil if view/update-function support is not
// wired yet (e.g. in tests that only exercise CRUD, or during startup
// wiring where the view delegate itself depends on this DocEngine as a
// DocWriter — see SetViews).
func NewDocEngine(store *mongoadapter.Adapter, views ViewDelegate) *DocEngine {
	return &DocEngine{store: store, views: views, log: logger.WithNamespace("docengine")}
}

// SetViews wires the view delegate after construction, breaking the
// constructor cycle between DocEngine and a ViewDelegate that itself
// needs a DocEngine (as views.DocWriter) to run update functions.
func (e *DocEngine) SetViews(views ViewDelegate) {
	e.views = views
}

// PutResult is the outcome of a successful write (put/post/delete).
type PutResult struct {
	ID  string
	Rev string
}

// Get returns the current document, or the revision matching rev if
// given. Tombstoned documents are reported as not-found unless rev
// explicitly names the tombstone revision.
func (e *DocEngine) Get(ctx context.Context, db, id, rev string) (*JSONDoc, error) {
	var raw map[string]interface{}
	err := e.store.FindOne(ctx, db, bson.M{"_id": id}, &raw)
	if err == mongoadapter.ErrNoMatch {
		return nil, newNotFoundError("missing")
	}
	if err != nil {
		return nil, translateUpstream(err)
	}

	doc := NewJSONDoc(raw)
	if rev != "" && doc.Rev() != rev {
		return nil, newConflictError()
	}
	if doc.Deleted() && rev == "" {
		return nil, newNotFoundError("deleted")
	}
	return doc, nil
}

// Put inserts or updates a document with a revision check (spec §4.6
// write protocol). id is taken from body["_id"] if empty.
func (e *DocEngine) Put(ctx context.Context, db, id string, body map[string]interface{}, rev string) (*PutResult, error) {
	if id == "" {
		if bodyID, _ := body["_id"].(string); bodyID != "" {
			id = bodyID
		}
	}
	if id == "" {
		return nil, newBadRequestError("missing document id")
	}

	bodyRev, _ := body["_rev"].(string)
	if bodyRev != "" && rev != "" && bodyRev != rev {
		return nil, newBadRequestError("_rev in body and rev parameter disagree")
	}
	if rev == "" {
		rev = bodyRev
	}

	return e.write(ctx, db, id, rev, body, false)
}

// Post is Put with an absent id, assigning a fresh UUID v4.
func (e *DocEngine) Post(ctx context.Context, db string, body map[string]interface{}) (*PutResult, error) {
	id, _ := body["_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	return e.Put(ctx, db, id, body, "")
}

// Delete writes a tombstone at the next generation. rev is mandatory.
func (e *DocEngine) Delete(ctx context.Context, db, id, rev string) (*PutResult, error) {
	if rev == "" {
		return nil, newBadRequestError("rev is required for delete")
	}
	return e.write(ctx, db, id, rev, map[string]interface{}{"_deleted": true}, true)
}

// write implements the revision-checked protocol shared by Put and
// Delete (spec §4.6 steps 1-4).
func (e *DocEngine) write(ctx context.Context, db, id, expectedRev string, body map[string]interface{}, tombstone bool) (*PutResult, error) {
	var prevRev Rev
	if expectedRev != "" {
		parsed, err := ParseRev(expectedRev)
		if err != nil {
			return nil, err
		}
		prevRev = parsed
	}

	next := stripProxyFields(body)
	next["_id"] = id

	newRev, err := bumpRev(prevRev, next)
	if err != nil {
		return nil, newInternalError(err)
	}
	next["_rev"] = newRev.String()

	if expectedRev == "" {
		// New document: insert, failing on duplicate _id. A tombstone row
		// at this _id is never deleted, only flagged _deleted, so the
		// duplicate-key case still needs to be told apart from a genuine
		// conflict (spec §3: a create with no _rev starts a new lineage
		// at generation 1 when the existing row is a tombstone).
		err := e.store.InsertOne(ctx, db, next)
		if err == mongoadapter.ErrDuplicateKey {
			return e.recreateOverTombstone(ctx, db, id, next, newRev)
		}
		if err != nil {
			return nil, translateUpstream(err)
		}
		return &PutResult{ID: id, Rev: newRev.String()}, nil
	}

	filter := bson.M{"_id": id, "_rev": expectedRev}
	err = e.store.ReplaceOneIf(ctx, db, filter, next)
	if err == mongoadapter.ErrNoMatch {
		return nil, newConflictError()
	}
	if err != nil {
		return nil, translateUpstream(err)
	}
	return &PutResult{ID: id, Rev: newRev.String()}, nil
}

// recreateOverTombstone is reached only after InsertOne reports id
// already exists. If the existing row is a tombstone, the create
// proceeds as a conditional replace keyed on the tombstone's own rev,
// still writing next's already-computed generation-1 rev (a fresh
// lineage); a non-tombstoned existing row is a genuine conflict.
func (e *DocEngine) recreateOverTombstone(ctx context.Context, db, id string, next map[string]interface{}, newRev Rev) (*PutResult, error) {
	var existing map[string]interface{}
	err := e.store.FindOne(ctx, db, bson.M{"_id": id}, &existing)
	if err == mongoadapter.ErrNoMatch {
		// Raced with a concurrent delete of the very row that just
		// caused our insert to fail; report it the same conflict the
		// caller would see from a normal concurrent write.
		return nil, newConflictError()
	}
	if err != nil {
		return nil, translateUpstream(err)
	}

	existingDoc := NewJSONDoc(existing)
	if !existingDoc.Deleted() {
		return nil, newConflictError()
	}

	filter := bson.M{"_id": id, "_rev": existingDoc.Rev()}
	if err := e.store.ReplaceOneIf(ctx, db, filter, next); err != nil {
		if err == mongoadapter.ErrNoMatch {
			return nil, newConflictError()
		}
		return nil, translateUpstream(err)
	}
	return &PutResult{ID: id, Rev: newRev.String()}, nil
}

// stripProxyFields returns a copy of body with _id and _rev removed, the
// "next body" the spec's write protocol computes the hash over.
func stripProxyFields(body map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k == "_id" || k == "_rev" {
			continue
		}
		out[k] = v
	}
	return out
}

// FindRows is the shaped result of Find/AllDocs: a CouchDB-style row
// list plus the total count before windowing (spec §4.4 step 6's
// total_rows convention, reused here for _find/_all_docs listing).
type FindRows struct {
	TotalRows int64
	Offset    int64
	Docs      []map[string]interface{}
}

// Find delegates to QueryTranslator and shapes the result (spec §4.6:
// "find(db, selector, sort, limit, skip) -> Delegates to QueryTranslator;
// returns shaped rows").
func (e *DocEngine) Find(ctx context.Context, db string, req mango.FindRequest) (*FindRows, error) {
	compiled, err := mango.CompileFind(req)
	if err != nil {
		return nil, translateMangoErr(err)
	}
	return e.runCompiledFind(ctx, db, compiled)
}

// AllDocs implements GET/POST /{db}/_all_docs (spec §4.5).
func (e *DocEngine) AllDocs(ctx context.Context, db string, req mango.AllDocsRequest) (*FindRows, error) {
	compiled := mango.CompileAllDocs(req)
	return e.runCompiledFind(ctx, db, compiled)
}

func (e *DocEngine) runCompiledFind(ctx context.Context, db string, compiled *mango.CompiledFind) (*FindRows, error) {
	total, err := e.store.Count(ctx, db, compiled.Filter)
	if err != nil {
		return nil, translateUpstream(err)
	}

	opts := options.Find()
	if len(compiled.Sort) > 0 {
		opts.SetSort(compiled.Sort)
	}
	if compiled.Projection != nil {
		opts.SetProjection(compiled.Projection)
	}
	if compiled.Limit > 0 {
		opts.SetLimit(compiled.Limit)
	}
	if compiled.Skip > 0 {
		opts.SetSkip(compiled.Skip)
	}

	cur, err := e.store.FindStream(ctx, db, compiled.Filter, opts)
	if err != nil {
		return nil, translateUpstream(err)
	}
	defer cur.Close(ctx)

	var docs []map[string]interface{}
	for cur.Next(ctx) {
		var doc map[string]interface{}
		if decErr := cur.Decode(&doc); decErr != nil {
			continue
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, translateUpstream(err)
	}

	return &FindRows{TotalRows: total, Offset: compiled.Skip, Docs: docs}, nil
}

// translateMangoErr converts a mango package error (which never imports
// this package, to avoid a cycle with DocEngine.Find) into the
// appropriate couchdb.Error kind.
func translateMangoErr(err error) error {
	if opErr, ok := err.(*mango.UnsupportedOperatorError); ok {
		return NewUnsupportedSelectorError(opErr.Op)
	}
	return newBadRequestError("%s", err.Error())
}

// BulkResult is one entry of bulk_docs's parallel result array.
type BulkResult struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok,omitempty"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// View delegates to the wired ViewEngine.
func (e *DocEngine) View(ctx context.Context, db, design, name string, opts ViewOptions) (*ViewResult, error) {
	if e.views == nil {
		return nil, newInternalError(fmt.Errorf("view engine not configured"))
	}
	return e.views.View(ctx, db, design, name, opts)
}

// UpdateFn delegates to the wired update-function runner.
func (e *DocEngine) UpdateFn(ctx context.Context, db, design, fn, id string, body map[string]interface{}, query map[string]string) (*UpdateResult, error) {
	if e.views == nil {
		return nil, newInternalError(fmt.Errorf("view engine not configured"))
	}
	return e.views.UpdateFn(ctx, db, design, fn, id, body, query)
}

func translateUpstream(err error) error {
	return newUpstreamUnavailableError(err)
}
