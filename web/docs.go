package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/couchmongo/bridge/pkg/couchdb"
)

// getDoc implements GET /{db}/{id}, honouring rev via the query string or
// If-Match header per spec §6.
func (s *Server) getDoc(c echo.Context) error {
	db, id := c.Param("db"), c.Param("id")
	rev, _ := revFromRequest(c)

	doc, err := s.docs.Get(c.Request().Context(), db, id, rev)
	if err != nil {
		return err
	}

	if inm := c.Request().Header.Get("If-None-Match"); inm != "" && inm == doc.Rev() {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSON(http.StatusOK, doc.M)
}

// postDoc implements POST /{db}: create a document, id from the body or
// generated.
func (s *Server) postDoc(c echo.Context) error {
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	res, err := s.docs.Post(c.Request().Context(), c.Param("db"), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"ok": true, "id": res.ID, "rev": res.Rev,
	})
}

// putDoc implements PUT /{db}/{id}: insert-or-update with a revision
// check, rev via query string, body, or If-Match.
func (s *Server) putDoc(c echo.Context) error {
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	rev, fromIfMatch := revFromRequest(c)
	res, err := s.docs.Put(c.Request().Context(), c.Param("db"), c.Param("id"), body, rev)
	if err != nil {
		return translatePreconditionFailed(err, fromIfMatch)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"ok": true, "id": res.ID, "rev": res.Rev,
	})
}

// deleteDoc implements DELETE /{db}/{id}. rev is mandatory per spec §4.6.
func (s *Server) deleteDoc(c echo.Context) error {
	rev, fromIfMatch := revFromRequest(c)
	if rev == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "rev is required")
	}
	res, err := s.docs.Delete(c.Request().Context(), c.Param("db"), c.Param("id"), rev)
	if err != nil {
		return translatePreconditionFailed(err, fromIfMatch)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true, "id": res.ID, "rev": res.Rev,
	})
}

// postBulkDocs implements POST /{db}/_bulk_docs.
func (s *Server) postBulkDocs(c echo.Context) error {
	var req couchdb.BulkDocsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	results, err := s.docs.BulkDocs(c.Request().Context(), c.Param("db"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, results)
}

// revFromRequest resolves the effective rev for a request: the `rev`
// query parameter takes precedence, then If-Match. The second return
// value reports whether the rev came from If-Match, since a mismatch on
// that source is reported as 412 rather than 409 (spec §12 supplement).
func revFromRequest(c echo.Context) (rev string, fromIfMatch bool) {
	if rev := c.QueryParam("rev"); rev != "" {
		return rev, false
	}
	if im := stripETagQuotes(c.Request().Header.Get("If-Match")); im != "" {
		return im, true
	}
	return "", false
}

// translatePreconditionFailed reports a conflict from DocEngine as 412
// instead of 409 when the expected rev came from If-Match: CouchDB
// treats a stale client cache (If-Match) differently from a genuine
// write race reported via the rev query parameter or body.
func translatePreconditionFailed(err error, fromIfMatch bool) error {
	if fromIfMatch && couchdb.IsConflict(err) {
		return couchdb.NewPreconditionFailedError()
	}
	return err
}

func stripETagQuotes(etag string) string {
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		return etag[1 : len(etag)-1]
	}
	return etag
}
