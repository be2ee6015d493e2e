package web

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/couchmongo/bridge/pkg/couchdb"
)

// getView implements GET /{db}/_design/{design}/_view/{view}. Options
// are JSON-encoded query-string values per spec §6.
func (s *Server) getView(c echo.Context) error {
	opts, err := viewOptionsFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.docs.View(c.Request().Context(), c.Param("db"), c.Param("design"), c.Param("view"), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func viewOptionsFromQuery(c echo.Context) (couchdb.ViewOptions, error) {
	var opts couchdb.ViewOptions

	if v := c.QueryParam("reduce"); v != "" {
		b, err := jsonBool(v)
		if err != nil {
			return opts, err
		}
		opts.Reduce = &b
	}
	if v := c.QueryParam("group"); v != "" {
		b, err := jsonBool(v)
		if err != nil {
			return opts, err
		}
		opts.Group = b
	}
	if v := c.QueryParam("group_level"); v != "" {
		var n int
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return opts, err
		}
		opts.GroupLevel = n
	}
	opts.IncludeDocs = c.QueryParam("include_docs") == "true"
	opts.Descending = c.QueryParam("descending") == "true"

	if v := c.QueryParam("limit"); v != "" {
		var n int
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return opts, err
		}
		opts.Limit = n
	}
	if v := c.QueryParam("skip"); v != "" {
		var n int
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return opts, err
		}
		opts.Skip = n
	}
	if v := c.QueryParam("start_key"); v != "" {
		var val interface{}
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			return opts, err
		}
		opts.StartKey = val
	}
	if v := c.QueryParam("end_key"); v != "" {
		var val interface{}
		if err := json.Unmarshal([]byte(v), &val); err != nil {
			return opts, err
		}
		opts.EndKey = val
	}
	opts.StartKeyDocID = c.QueryParam("startkey_docid")
	opts.EndKeyDocID = c.QueryParam("endkey_docid")

	if v := c.QueryParam("keys"); v != "" {
		var keys []interface{}
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return opts, err
		}
		opts.Keys = keys
	}

	return opts, nil
}

func jsonBool(v string) (bool, error) {
	var b bool
	err := json.Unmarshal([]byte(v), &b)
	return b, err
}

// postUpdate implements POST /{db}/_design/{design}/_update/{fn}
// (no target document id).
func (s *Server) postUpdate(c echo.Context) error {
	return s.runUpdate(c, "")
}

// putUpdate implements PUT /{db}/_design/{design}/_update/{fn}/{id}.
func (s *Server) putUpdate(c echo.Context) error {
	return s.runUpdate(c, c.Param("id"))
}

func (s *Server) runUpdate(c echo.Context, id string) error {
	var body map[string]interface{}
	_ = c.Bind(&body) // an update function may legitimately receive an empty body

	query := map[string]string{"method": c.Request().Method}
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	result, err := s.docs.UpdateFn(c.Request().Context(), c.Param("db"), c.Param("design"), c.Param("fn"), id, body, query)
	if err != nil {
		return err
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.Response().Header().Set("X-Couch-Update-Newrev", result.NewRev)
	return c.Blob(status, result.ContentType, result.Body)
}
