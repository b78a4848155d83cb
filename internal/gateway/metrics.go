// ABOUTME: Prometheus metrics for dispatch outcomes
// ABOUTME: Implements the dispatcher's observer interface over counters

package gateway

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts dispatch outcomes. It implements dispatch.Observer and
// serves its own scrape endpoint from a private registry so nothing else
// in the process leaks into it.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	dedupServed *prometheus.CounterVec
	admissionNo *prometheus.CounterVec
	authNo      prometheus.Counter
	rateLimited prometheus.Counter
	inflight    prometheus.Gauge
}

// NewMetrics creates and registers the gateway metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Completed dispatches by plugin and status code.",
		}, []string{"plugin", "status"}),
		dedupServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_deduplicated_total",
			Help: "Dispatches answered from the idempotency cache or a shared in-flight execution.",
		}, []string{"plugin"}),
		admissionNo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_admission_rejected_total",
			Help: "Dispatches rejected because capacity and queue were exhausted.",
		}, []string{"plugin"}),
		authNo: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_auth_rejected_total",
			Help: "Requests rejected by the signature gate.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_inflight_requests",
			Help: "Invoke requests currently being processed.",
		}),
	}

	m.registry.MustRegister(m.requests, m.dedupServed, m.admissionNo, m.authNo, m.rateLimited, m.inflight)
	return m
}

// RequestCompleted implements dispatch.Observer.
func (m *Metrics) RequestCompleted(plugin string, statusCode int, shared bool) {
	m.requests.WithLabelValues(plugin, strconv.Itoa(statusCode)).Inc()
	if shared {
		m.dedupServed.WithLabelValues(plugin).Inc()
	}
}

// AdmissionRejected implements dispatch.Observer.
func (m *Metrics) AdmissionRejected(plugin string) {
	m.admissionNo.WithLabelValues(plugin).Inc()
}

// AuthRejected implements dispatch.Observer.
func (m *Metrics) AuthRejected() {
	m.authNo.Inc()
}

// RateLimited records a request refused before dispatch.
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// InvokeStarted marks one invoke request in flight. The returned function
// marks it finished.
func (m *Metrics) InvokeStarted() func() {
	m.inflight.Inc()
	return m.inflight.Dec
}

// Handler returns the scrape endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
