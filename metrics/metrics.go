/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counts engine outcomes (events recorded, invoices generated, failed
  operations) and times HTTP requests. Metrics implements
  revenue.Observer, so the engine reports through it without importing
  Prometheus.

METRICS:
  revenue_events_recorded_total{line}
  revenue_invoices_generated_total{line,outcome}   outcome: created|regenerated
  revenue_operation_errors_total{operation}
  revenue_http_request_duration_seconds{method,route,status}

SEE ALSO:
  - revenue/engine.go: Observer interface
  - api/server.go: /metrics endpoint
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/revenue-engine/revenue"
)

// Metrics holds the registered collectors.
type Metrics struct {
	EventsRecorded    *prometheus.CounterVec
	InvoicesGenerated *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

var _ revenue.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		EventsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revenue_events_recorded_total",
				Help: "Total number of revenue events recorded",
			},
			[]string{"line"},
		),
		InvoicesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revenue_invoices_generated_total",
				Help: "Total number of invoice generations",
			},
			[]string{"line", "outcome"},
		),
		OperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revenue_operation_errors_total",
				Help: "Total number of failed engine operations",
			},
			[]string{"operation"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revenue_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.EventsRecorded,
		m.InvoicesGenerated,
		m.OperationErrors,
		m.RequestDuration,
	)
	return m
}

// =============================================================================
// ENGINE OBSERVER
// =============================================================================

func (m *Metrics) EventRecorded(line revenue.Line) {
	m.EventsRecorded.WithLabelValues(string(line)).Inc()
}

func (m *Metrics) InvoiceGenerated(line revenue.Line, created bool) {
	outcome := "regenerated"
	if created {
		outcome = "created"
	}
	m.InvoicesGenerated.WithLabelValues(string(line), outcome).Inc()
}

func (m *Metrics) OperationFailed(op string) {
	m.OperationErrors.WithLabelValues(op).Inc()
}

// =============================================================================
// HTTP
// =============================================================================

// Middleware times every request. The route label is the chi route
// pattern, so path parameters do not create new series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
