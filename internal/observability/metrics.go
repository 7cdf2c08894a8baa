package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the delivery engine.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	deliveredTotal   *prometheus.CounterVec
	failedTotal      *prometheus.CounterVec
	skippedTotal     *prometheus.CounterVec
	suppressedTotal  *prometheus.CounterVec
	batchedTotal     *prometheus.CounterVec
	batchFlushSize   prometheus.Histogram
	retryScheduled   prometheus.Counter
	retryExhausted   prometheus.Counter
	sendDuration     *prometheus.HistogramVec
	deliveryInflight prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "push_relay",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "notifications_delivered_total",
				Help:      "Total number of notifications delivered to at least one endpoint.",
			},
			[]string{"type"},
		),
		failedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "notifications_failed_total",
				Help:      "Total number of delivery attempts that ended in failure.",
			},
			[]string{"type", "reason"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "notifications_skipped_total",
				Help:      "Total number of notifications skipped because the recipient has no active endpoints.",
			},
			[]string{"type"},
		),
		suppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "notifications_suppressed_total",
				Help:      "Total number of requests suppressed as duplicates.",
			},
			[]string{"type"},
		),
		batchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "notifications_batched_total",
				Help:      "Total number of requests absorbed into a pending batch.",
			},
			[]string{"type"},
		),
		batchFlushSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "push_relay",
				Name:      "batch_flush_size",
				Help:      "Number of requests per flushed batch.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		retryScheduled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries scheduled for retry.",
			},
		),
		retryExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "push_relay",
				Name:      "retry_exhausted_total",
				Help:      "Total number of deliveries dropped after exhausting the retry ceiling.",
			},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "push_relay",
				Name:      "send_duration_seconds",
				Help:      "Push transport call duration in seconds grouped by type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"type"},
		),
		deliveryInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "push_relay",
				Name:      "delivery_inflight",
				Help:      "Current number of in-flight transport calls.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveredTotal,
		m.failedTotal,
		m.skippedTotal,
		m.suppressedTotal,
		m.batchedTotal,
		m.batchFlushSize,
		m.retryScheduled,
		m.retryExhausted,
		m.sendDuration,
		m.deliveryInflight,
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
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.httpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())

		return err
	}
}

func routePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

func (m *Metrics) IncDelivered(notificationType string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) IncFailed(notificationType, reason string) {
	if m == nil {
		return
	}
	m.failedTotal.WithLabelValues(notificationType, reason).Inc()
}

func (m *Metrics) IncSkipped(notificationType string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) IncSuppressed(notificationType string) {
	if m == nil {
		return
	}
	m.suppressedTotal.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) IncBatched(notificationType string) {
	if m == nil {
		return
	}
	m.batchedTotal.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) ObserveBatchFlushSize(size int) {
	if m == nil {
		return
	}
	m.batchFlushSize.Observe(float64(size))
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduled.Inc()
}

func (m *Metrics) IncRetryExhausted() {
	if m == nil {
		return
	}
	m.retryExhausted.Inc()
}

func (m *Metrics) ObserveSendDuration(notificationType string, d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(notificationType).Observe(d.Seconds())
}

func (m *Metrics) IncDeliveryInflight() {
	if m == nil {
		return
	}
	m.deliveryInflight.Inc()
}

func (m *Metrics) DecDeliveryInflight() {
	if m == nil {
		return
	}
	m.deliveryInflight.Dec()
}
