package views

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/couchmongo/bridge/pkg/couchdb"
)

// DocWriter is the narrow DocEngine surface UpdateFn needs to run the
// read-modify-write protocol of spec §4.6's update-function paragraph:
// the JSRuntime call happens *inside* the read-modify-write, so UpdateFn
// needs both read and write access, not just DocReader.
type DocWriter interface {
	DocReader
	Put(ctx context.Context, db, id string, body map[string]interface{}, rev string) (*couchdb.PutResult, error)
}

// UpdateRunner wires DesignRepo's update-function sources to JSRuntime
// invocations and DocEngine's write path. It implements the second half
// of couchdb.ViewDelegate.
type UpdateRunner struct {
	repo  *DesignRepo
	store DocWriter
}

// NewUpdateRunner builds an UpdateRunner.
func NewUpdateRunner(repo *DesignRepo, store DocWriter) *UpdateRunner {
	return &UpdateRunner{repo: repo, store: store}
}

// UpdateFn implements couchdb.ViewDelegate.UpdateFn: it loads the current
// document (nil if absent), invokes the update function with (doc, req),
// and if the function returned a non-null document, persists it through
// DocEngine.Put using the just-read revision as the expected rev (so the
// write still goes through the normal conflict check). If the function
// returns null, no write happens and the current revision is preserved
// (spec §4.3/§4.6).
func (u *UpdateRunner) UpdateFn(ctx context.Context, db, design, fn, id string, body map[string]interface{}, query map[string]string) (*couchdb.UpdateResult, error) {
	src, err := u.repo.LookupUpdate(ctx, db, design, fn)
	if err != nil {
		return nil, err
	}
	compiled, err := u.repo.compiledFor(db+"/"+design, "update", fn, src.Src)
	if err != nil {
		return nil, err
	}

	var currentDoc map[string]interface{}
	var currentRev string
	if id != "" {
		existing, getErr := u.store.Get(ctx, db, id, "")
		if getErr == nil {
			currentDoc = existing.M
			currentRev = existing.Rev()
		} else if !couchdb.IsNotFound(getErr) {
			return nil, getErr
		}
	}

	bodyBytes, _ := json.Marshal(body)
	req := UpdateRequest{
		Method: query["method"],
		Query:  query,
		Body:   string(bodyBytes),
	}

	outcome, err := RunUpdate(ctx, compiled, currentDoc, req, runtimeBudget{})
	if err != nil {
		return nil, newFunctionFailureFor(err)
	}

	result := &couchdb.UpdateResult{
		StatusCode: responseCode(outcome.Response.Code),
		Body:       []byte(outcome.Response.Body),
		ContentType: responseContentType(outcome.Response.Headers),
	}

	if !outcome.HasNewDoc || outcome.NewDoc == nil {
		result.NewRev = currentRev
		return result, nil
	}

	putID := id
	if putID == "" {
		if v, ok := outcome.NewDoc["_id"].(string); ok {
			putID = v
		}
	}
	putRes, err := u.store.Put(ctx, db, putID, outcome.NewDoc, currentRev)
	if err != nil {
		return nil, err
	}
	result.Wrote = true
	result.NewRev = putRes.Rev
	return result, nil
}

func responseCode(code int) int {
	if code == 0 {
		return 200
	}
	return code
}

func responseContentType(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") {
			return v
		}
	}
	return "application/json"
}

// newFunctionFailureFor wraps a thrown-exception error from RunUpdate as
// a couchdb *function-failure* error (spec §4.3: "If they throw, the
// transaction is aborted with function-failure").
func newFunctionFailureFor(err error) error {
	return couchdb.NewFunctionFailureError(err.Error(), "")
}
