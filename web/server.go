package web

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/couchmongo/bridge/pkg/couchdb"
	"github.com/couchmongo/bridge/pkg/logger"
	"github.com/couchmongo/bridge/pkg/metrics"
	"github.com/couchmongo/bridge/pkg/mongoadapter"
)

// Server is the proxy's HTTP front end, routing CouchDB-shaped requests
// to DocEngine.
type Server struct {
	echo          *echo.Echo
	docs          *couchdb.DocEngine
	mongo         *mongoadapter.Adapter
	log           *logger.Entry
	allowDBDelete bool
}

// NewServer builds and routes a Server. docs is the DocEngine that
// implements the proxy's core contract; mongo is used directly only for
// the database-admin routes (create/drop/list collection), which sit
// below DocEngine's document-level contract. allowDBDelete gates
// DELETE /{db} (spec §6: "forbidden unless configured").
func NewServer(docs *couchdb.DocEngine, mongo *mongoadapter.Adapter, rec metrics.Recorder, allowDBDelete bool) *Server {
	if rec == nil {
		rec = metrics.Noop{}
	}
	log := logger.WithNamespace("web")

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware(log))
	e.Use(metricsMiddleware(rec))

	s := &Server{echo: e, docs: docs, mongo: mongo, log: log, allowDBDelete: allowDBDelete}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/", s.getWelcome)
	s.echo.GET("/_all_dbs", s.getAllDBs)

	s.echo.HEAD("/:db", s.headDB)
	s.echo.GET("/:db", s.getDB)
	s.echo.PUT("/:db", s.putDB)
	s.echo.DELETE("/:db", s.deleteDB)

	s.echo.POST("/:db", s.postDoc)
	s.echo.GET("/:db/:id", s.getDoc)
	s.echo.PUT("/:db/:id", s.putDoc)
	s.echo.DELETE("/:db/:id", s.deleteDoc)

	s.echo.POST("/:db/_bulk_docs", s.postBulkDocs)
	s.echo.POST("/:db/_find", s.postFind)
	s.echo.GET("/:db/_all_docs", s.getAllDocs)
	s.echo.POST("/:db/_all_docs", s.postAllDocs)

	s.echo.GET("/:db/_design/:design/_view/:view", s.getView)
	s.echo.POST("/:db/_design/:design/_update/:fn", s.postUpdate)
	s.echo.PUT("/:db/_design/:design/_update/:fn/:id", s.putUpdate)
}

// ServeHTTP lets Server be used directly as an http.Handler, e.g. behind
// httptest.NewServer in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start runs the HTTP listener, blocking until it stops.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) getWelcome(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"couchdb": "Welcome",
		"version": "couchmongo-bridge/1.0",
	})
}
