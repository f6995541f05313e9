// Package metrics exposes the facilitator's Prometheus instrumentation:
// request counters/latency via gin middleware, plus verify/settle outcome
// counters recorded explicitly by their respective handlers.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds one facilitator's Prometheus collectors, registered
// against a private registry rather than the global default one. Each
// Metrics instance is independent: building a second one (as every test
// that constructs its own *Server does) never collides with the first.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	verifyTotal     *prometheus.CounterVec
	settleTotal     *prometheus.CounterVec
	activeRequests  prometheus.Gauge
}

// New builds a fresh registry and registers the facilitator's collectors
// against it.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_facilitator_requests_total",
				Help: "Total number of HTTP requests served by the facilitator.",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_facilitator_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		verifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_facilitator_verify_total",
				Help: "Total number of /verify requests by network, scheme, and result.",
			},
			[]string{"network", "scheme", "result"},
		),
		settleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_facilitator_settle_total",
				Help: "Total number of /settle requests by network, scheme, and result.",
			},
			[]string{"network", "scheme", "result"},
		),
		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "x402_facilitator_active_requests",
				Help: "Number of HTTP requests currently in flight.",
			},
		),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.verifyTotal,
		m.settleTotal,
		m.activeRequests,
	)

	return m
}

// Middleware records per-request counters and latency, skipping /metrics
// itself to avoid the collector scraping its own traffic.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.activeRequests.Inc()
		defer m.activeRequests.Dec()

		c.Next()

		m.observeRequest(c, time.Since(start))
	}
}

func (m *Metrics) observeRequest(c *gin.Context, duration time.Duration) {
	status := strconv.Itoa(c.Writer.Status())

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}

	m.requestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
	m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration.Seconds())
}

// RecordVerify records the outcome of a /verify call.
func (m *Metrics) RecordVerify(network, scheme string, success bool) {
	m.verifyTotal.WithLabelValues(network, scheme, resultLabel(success)).Inc()
}

// RecordSettle records the outcome of a /settle call.
func (m *Metrics) RecordSettle(network, scheme string, success bool) {
	m.settleTotal.WithLabelValues(network, scheme, resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler serves this Metrics instance's registry in Prometheus exposition
// format at /metrics.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
