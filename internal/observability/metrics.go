package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	engineRequestsTotal *prometheus.CounterVec
	engineDuration      *prometheus.HistogramVec
	engineRetries       prometheus.Counter
	retryFallbacks      prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisperflow_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whisperflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		engineRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whisperflow_engine_requests_total",
				Help: "Total inference engine requests.",
			},
			[]string{"endpoint", "status"},
		),
		engineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whisperflow_engine_request_duration_seconds",
				Help:    "Inference engine request duration in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
			},
			[]string{"endpoint", "status"},
		),
		engineRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "whisperflow_engine_retries_total",
				Help: "Number of requests escalated to a wider-beam retry attempt.",
			},
		),
		retryFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "whisperflow_retry_fallback_total",
				Help: "Number of retry attempts that failed, keeping the first attempt's result.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.engineRequestsTotal,
		m.engineDuration,
		m.engineRetries,
		m.retryFallbacks,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveEngine(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.engineRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.engineDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) IncEngineRetry() {
	if m == nil {
		return
	}
	m.engineRetries.Inc()
}

func (m *Metrics) IncRetryFallback() {
	if m == nil {
		return
	}
	m.retryFallbacks.Inc()
}
