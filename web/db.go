package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/couchmongo/bridge/pkg/couchdb"
)

// getAllDBs lists every MongoDB collection name (spec §6, GET /_all_dbs).
func (s *Server) getAllDBs(c echo.Context) error {
	names, err := s.mongo.ListCollections(c.Request().Context())
	if err != nil {
		return couchdb.NewUpstreamUnavailableError(err)
	}
	return c.JSON(http.StatusOK, names)
}

// headDB reports whether a database (collection) exists, body-less.
func (s *Server) headDB(c echo.Context) error {
	exists, err := s.mongo.CollectionExists(c.Request().Context(), c.Param("db"))
	if err != nil {
		return couchdb.NewUpstreamUnavailableError(err)
	}
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

// getDB reports database existence with a CouchDB-shaped body.
func (s *Server) getDB(c echo.Context) error {
	db := c.Param("db")
	exists, err := s.mongo.CollectionExists(c.Request().Context(), db)
	if err != nil {
		return couchdb.NewUpstreamUnavailableError(err)
	}
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound, "Database does not exist.")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"db_name": db,
	})
}

// putDB creates a database (collection). Creation is idempotent per spec
// §6.
func (s *Server) putDB(c echo.Context) error {
	db := c.Param("db")
	if err := s.mongo.CreateCollection(c.Request().Context(), db); err != nil {
		return couchdb.NewUpstreamUnavailableError(err)
	}
	return c.JSON(http.StatusCreated, map[string]bool{"ok": true})
}

// deleteDB drops a database (collection). Forbidden unless explicitly
// configured (spec §6), since dropping a collection is irreversible and
// this proxy keeps no backup of what it served.
func (s *Server) deleteDB(c echo.Context) error {
	if !s.allowDBDelete {
		return echo.NewHTTPError(http.StatusForbidden, "database deletion is disabled; set allow-db-delete to enable it")
	}
	db := c.Param("db")
	if err := s.mongo.DropCollection(c.Request().Context(), db); err != nil {
		return couchdb.NewUpstreamUnavailableError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
