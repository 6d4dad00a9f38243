// Package metrics exposes sync and workflow measurements as Prometheus
// collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/shiftsync/internal/delta"
	"github.com/roach88/shiftsync/internal/engine"
	"github.com/roach88/shiftsync/internal/model"
	"github.com/roach88/shiftsync/internal/orchestrator"
	"github.com/roach88/shiftsync/internal/store"
)

const namespace = "shiftsync"

// Metrics holds the collectors of one process. It implements
// orchestrator.Recorder and engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	syncItems         *prometheus.CounterVec
	weekDuration      *prometheus.HistogramVec
	groupCacheHits    prometheus.Counter
	groupCacheMisses  prometheus.Counter
	instancesFinished *prometheus.CounterVec
	workflowFailures  *prometheus.CounterVec
	instanceDuration  *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

var (
	_ orchestrator.Recorder = (*Metrics)(nil)
	_ engine.Observer       = (*Metrics)(nil)
)

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_items_total",
			Help:      "Records pushed to the destination, by entity type and outcome.",
		}, []string{"entity", "outcome"}),
		weekDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "week_sync_duration_seconds",
			Help:      "Duration of one week sync, by entity type.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"entity"}),
		groupCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_cache_hits_total",
			Help:      "Scheduling group lookups served from the cache.",
		}),
		groupCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_cache_misses_total",
			Help:      "Scheduling group lookups that missed the cache.",
		}),
		instancesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_finished_total",
			Help:      "Workflow instances that reached a final state, by workflow and status.",
		}, []string{"workflow", "status"}),
		workflowFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_failures_total",
			Help:      "Failed workflow instances and failed team cycles, by workflow.",
		}, []string{"workflow"}),
		instanceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instance_duration_seconds",
			Help:      "Time from the start of a run to its final state, by workflow.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"workflow"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Admin API request duration, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ItemsApplied(et model.EntityType, outcome delta.Outcome, n int) {
	if n <= 0 {
		return
	}
	m.syncItems.WithLabelValues(string(et), string(outcome)).Add(float64(n))
}

func (m *Metrics) WeekSynced(et model.EntityType, elapsed time.Duration) {
	m.weekDuration.WithLabelValues(string(et)).Observe(elapsed.Seconds())
}

func (m *Metrics) GroupCacheLookup(hit bool) {
	if hit {
		m.groupCacheHits.Inc()
		return
	}
	m.groupCacheMisses.Inc()
}

// CycleFailed counts a cycle of a long-running workflow that failed and
// will be retried by its next cycle.
func (m *Metrics) CycleFailed(workflow string) {
	m.workflowFailures.WithLabelValues(workflow).Inc()
}

func (m *Metrics) InstanceFinished(workflow string, status store.Status, elapsed time.Duration) {
	m.instancesFinished.WithLabelValues(workflow, string(status)).Inc()
	if status == store.StatusFailed {
		m.workflowFailures.WithLabelValues(workflow).Inc()
	}
	m.instanceDuration.WithLabelValues(workflow).Observe(elapsed.Seconds())
}

// Middleware records request counts and durations labelled by the chi
// route pattern, so path parameters do not inflate cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
