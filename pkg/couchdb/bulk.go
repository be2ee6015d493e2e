package couchdb

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// BulkDocsRequest is the decoded body of POST /{db}/_bulk_docs.
type BulkDocsRequest struct {
	Docs         []map[string]interface{} `json:"docs"`
	AllOrNothing bool                      `json:"all_or_nothing,omitempty"`
	NewEdits     *bool                     `json:"new_edits,omitempty"`
}

// BulkDocs applies each document independently and returns a parallel
// result array (spec §4.6/§5). Documents are dispatched concurrently; a
// failure on one never blocks or rolls back the others. all_or_nothing is
// accepted but, per spec §5, is best-effort only: it does not change the
// dispatch or rollback behaviour, only (conventionally) the client's
// expectation of atomicity, which this proxy does not provide.
func (e *DocEngine) BulkDocs(ctx context.Context, db string, req BulkDocsRequest) ([]BulkResult, error) {
	results := make([]BulkResult, len(req.Docs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs *multierror.Error

	for i, doc := range req.Docs {
		i, doc := i, doc
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := e.bulkApplyOne(ctx, db, doc)
			results[i] = result
			if result.Error != "" {
				mu.Lock()
				errs = multierror.Append(errs, &Error{Kind: KindBadRequest, Error_: result.Error, Reason: result.Reason})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if errs != nil {
		e.log.WithField("db", db).Debugf("bulk_docs: %d of %d documents failed", errs.Len(), len(req.Docs))
	}
	// bulk_docs never fails wholesale; per-document outcomes are carried
	// in the result array, matching CouchDB's own contract.
	return results, nil
}

// bulkApplyOne runs the single-document write protocol and converts any
// *Error into a BulkResult entry instead of propagating it, so one bad
// document cannot abort the batch.
func (e *DocEngine) bulkApplyOne(ctx context.Context, db string, doc map[string]interface{}) BulkResult {
	id, _ := doc["_id"].(string)
	rev, _ := doc["_rev"].(string)

	deleted, _ := doc["_deleted"].(bool)
	var res *PutResult
	var err error
	switch {
	case deleted:
		if rev == "" {
			return BulkResult{ID: id, Error: "bad_request", Reason: "rev is required for delete"}
		}
		res, err = e.Delete(ctx, db, id, rev)
	case id == "":
		res, err = e.Post(ctx, db, doc)
	default:
		res, err = e.Put(ctx, db, id, doc, rev)
	}

	if err != nil {
		cerr, ok := err.(*Error)
		if !ok {
			return BulkResult{ID: id, Error: "internal_server_error", Reason: err.Error()}
		}
		return BulkResult{ID: id, Error: cerr.Error_, Reason: cerr.Reason}
	}
	return BulkResult{ID: res.ID, OK: true, Rev: res.Rev}
}
