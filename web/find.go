package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/couchmongo/bridge/pkg/couchdb/mango"
)

// postFind implements POST /{db}/_find.
func (s *Server) postFind(c echo.Context) error {
	var req mango.FindRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}

	result, err := s.docs.Find(c.Request().Context(), c.Param("db"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"docs": result.Docs})
}

// getAllDocs implements GET /{db}/_all_docs.
func (s *Server) getAllDocs(c echo.Context) error {
	req := mango.AllDocsRequest{
		StartKey:    c.QueryParam("start_key"),
		EndKey:      c.QueryParam("end_key"),
		IncludeDocs: c.QueryParam("include_docs") == "true",
		Descending:  c.QueryParam("descending") == "true",
	}
	return s.respondAllDocs(c, req)
}

// postAllDocs implements POST /{db}/_all_docs with a `keys` body.
func (s *Server) postAllDocs(c echo.Context) error {
	var req mango.AllDocsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed JSON body")
	}
	return s.respondAllDocs(c, req)
}

func (s *Server) respondAllDocs(c echo.Context, req mango.AllDocsRequest) error {
	result, err := s.docs.AllDocs(c.Request().Context(), c.Param("db"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total_rows": result.TotalRows,
		"offset":     result.Offset,
		"rows":       result.Docs,
	})
}
