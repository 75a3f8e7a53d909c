// Package metrics exposes Prometheus counters for HTTP traffic and list events.
//
// Each Metrics value owns a private registry instead of the global default
// one, so tests (and several servers in one process) never collide.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/tasklists/internal/event"
	"github.com/sakif/tasklists/internal/model"
)

// Metrics bundles every collector the server publishes on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	Requests   *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	ListEvents *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry,
// together with the standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by route pattern, method and status",
			},
			[]string{"route", "method", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern and method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		ListEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "list_events_total",
				Help: "List lifecycle events emitted by the store",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.Requests,
		m.Duration,
		m.ListEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Attach counts every save and remove announced on the relay.
func (m *Metrics) Attach(r *event.Relay) (detach func()) {
	count := func(kind event.Kind, _ *model.List) {
		m.ListEvents.WithLabelValues(string(kind)).Inc()
	}
	unsubSave := r.Subscribe(string(event.Save), count)
	unsubRemove := r.Subscribe(string(event.Remove), count)
	return func() {
		unsubSave()
		unsubRemove()
	}
}

// Middleware records request count and latency per chi route pattern.
//
// The route PATTERN ("/api/lists/{id}") is used as the label, never the raw
// path, otherwise every list id would create a new time series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.Duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
