// Package metrics defines the narrow contract the proxy needs from a
// metrics exporter. The exporter itself is an external collaborator
// (§1 of the spec); this package only specifies what the core calls and
// ships one Prometheus-backed implementation of it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Recorder is the contract DocEngine, ViewEngine and the Mongo adapter use
// to report operational counters. Nothing in pkg/couchdb or pkg/views
// imports Prometheus directly; they depend only on this interface.
type Recorder interface {
	// ObserveRequest records one HTTP request's outcome and latency.
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	// ObserveViewBuild records one ViewEngine.view invocation's latency and
	// the number of documents mapped.
	ObserveViewBuild(db, design, view string, docs int, elapsed time.Duration)
	// IncJSBudgetExceeded counts a map/reduce/update invocation that was
	// terminated for exceeding its time or step budget.
	IncJSBudgetExceeded(kind string)
	// IncMongoRetry counts one retry attempt made by the Mongo adapter.
	IncMongoRetry(op string)
}

// Prometheus is the default Recorder, registering its collectors on the
// given registry (pass prometheus.NewRegistry() for test isolation, or
// prometheus.DefaultRegisterer in production).
type Prometheus struct {
	requests        *prometheus.HistogramVec
	viewBuilds      *prometheus.HistogramVec
	viewBuildDocs   *prometheus.HistogramVec
	jsBudgetExceeds *prometheus.CounterVec
	mongoRetries    *prometheus.CounterVec
}

// NewPrometheus builds and registers a Prometheus recorder.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "couchmongo_http_request_duration_seconds",
			Help: "Latency of HTTP requests served by the proxy.",
		}, []string{"method", "route", "status"}),
		viewBuilds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "couchmongo_view_build_duration_seconds",
			Help: "Latency of a full view build (map + reduce).",
		}, []string{"db", "design", "view"}),
		viewBuildDocs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "couchmongo_view_build_docs",
			Help:    "Number of documents mapped per view build.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"db", "design", "view"}),
		jsBudgetExceeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "couchmongo_js_budget_exceeded_total",
			Help: "Map/reduce/update invocations terminated for exceeding their time or step budget.",
		}, []string{"kind"}),
		mongoRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "couchmongo_mongo_adapter_retries_total",
			Help: "Retry attempts made by the Mongo adapter on transient errors.",
		}, []string{"op"}),
	}
	reg.MustRegister(p.requests, p.viewBuilds, p.viewBuildDocs, p.jsBudgetExceeds, p.mongoRetries)
	return p
}

// ObserveRequest implements Recorder.
func (p *Prometheus) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	p.requests.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

// ObserveViewBuild implements Recorder.
func (p *Prometheus) ObserveViewBuild(db, design, view string, docs int, elapsed time.Duration) {
	p.viewBuilds.WithLabelValues(db, design, view).Observe(elapsed.Seconds())
	p.viewBuildDocs.WithLabelValues(db, design, view).Observe(float64(docs))
}

// IncJSBudgetExceeded implements Recorder.
func (p *Prometheus) IncJSBudgetExceeded(kind string) {
	p.jsBudgetExceeds.WithLabelValues(kind).Inc()
}

// IncMongoRetry implements Recorder.
func (p *Prometheus) IncMongoRetry(op string) {
	p.mongoRetries.WithLabelValues(op).Inc()
}

// Handler returns an HTTP handler for prometheus.DefaultGatherer.
// Collectors registered on any other registry (the serve command uses
// prometheus.NewRegistry()) are not exposed through it, and nothing in
// this module mounts it.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Noop is a Recorder that discards everything, used where the caller has
// not wired a real exporter (tests, one-off tools).
type Noop struct{}

// ObserveRequest implements Recorder.
func (Noop) ObserveRequest(string, string, int, time.Duration) {}

// ObserveViewBuild implements Recorder.
func (Noop) ObserveViewBuild(string, string, string, int, time.Duration) {}

// IncJSBudgetExceeded implements Recorder.
func (Noop) IncJSBudgetExceeded(string) {}

// IncMongoRetry implements Recorder.
func (Noop) IncMongoRetry(string) {}
