package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and queue flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	deliverySucceededTotal prometheus.Counter
	deliveryFailedTotal    *prometheus.CounterVec
	deliveryDuration       prometheus.Histogram
	rateLimitedTotal       prometheus.Counter
	retryScheduledTotal    prometheus.Counter
	workerInflight         prometheus.Gauge
	retryQueueDepth        prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "registry_bridge",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "registry_bridge",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliverySucceededTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "registry_bridge",
				Name:      "delivery_succeeded_total",
				Help:      "Total number of registrations accepted by the partner API.",
			},
		),
		deliveryFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "registry_bridge",
				Name:      "delivery_failed_total",
				Help:      "Total number of registrations that ended in failed state.",
			},
			[]string{"reason"},
		),
		deliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "registry_bridge",
				Name:      "delivery_duration_seconds",
				Help:      "Partner API delivery duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		rateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "registry_bridge",
				Name:      "rate_limited_total",
				Help:      "Total number of dispatch requests rejected by the per-user rate limit.",
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "registry_bridge",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries scheduled for retry.",
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "registry_bridge",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight queue deliveries.",
			},
		),
		retryQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "registry_bridge",
				Name:      "retry_queue_depth",
				Help:      "Number of records currently waiting in the retry queue.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliverySucceededTotal,
		m.deliveryFailedTotal,
		m.deliveryDuration,
		m.rateLimitedTotal,
		m.retryScheduledTotal,
		m.workerInflight,
		m.retryQueueDepth,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDeliverySucceeded() {
	if m == nil {
		return
	}
	m.deliverySucceededTotal.Inc()
}

func (m *Metrics) IncDeliveryFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.deliveryFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDuration.Observe(seconds)
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) SetQueueDepth(depth int64) {
	if m == nil {
		return
	}
	m.retryQueueDepth.Set(float64(depth))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
