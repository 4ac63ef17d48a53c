package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	repairRecords   *prometheus.CounterVec
	sideEffects     *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_workflow_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticket_workflow_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		errorCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_workflow_http_errors_total",
				Help: "Error responses by route, method and error kind",
			},
			[]string{"route", "method", "kind"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_workflow_transitions_total",
				Help: "Workflow operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		repairRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_workflow_repair_records_total",
				Help: "Repair records written on close approval",
			},
			[]string{"outcome"},
		),
		sideEffects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_workflow_side_effect_failures_total",
				Help: "Post-commit side effects that failed",
			},
			[]string{"effect"},
		),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.transitions,
		m.repairRecords,
		m.sideEffects,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, kind string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(route, method, kind).Inc()
}

// RecordTransition counts a workflow operation. outcome is "ok" or an error kind.
func (m *Metrics) RecordTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordRepairRecord counts a repair record write attempt.
func (m *Metrics) RecordRepairRecord(ok bool) {
	if m == nil {
		return
	}
	outcome := "created"
	if !ok {
		outcome = "failed"
	}
	m.repairRecords.WithLabelValues(outcome).Inc()
}

// RecordSideEffectFailure counts a failed notification, SLA command or
// similar post-commit action.
func (m *Metrics) RecordSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(effect).Inc()
}
