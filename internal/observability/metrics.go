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

const namespace = "notification_dispatch"

// Metrics stores Prometheus collectors used by the ops server and the delivery pipeline.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDuration         *prometheus.HistogramVec
	notificationsQueuedTotal    *prometheus.CounterVec
	notificationsDeliveredTotal *prometheus.CounterVec
	notificationsRetriedTotal   *prometheus.CounterVec
	notificationsDeadLettered   *prometheus.CounterVec
	notificationSendDuration    *prometheus.HistogramVec
	consumerInflight            *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of ops HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Ops HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsQueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_queued_total",
				Help:      "Total number of notifications accepted onto the work queue.",
			},
			[]string{"type"},
		),
		notificationsDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_delivered_total",
				Help:      "Total number of notifications handed to a transport successfully.",
			},
			[]string{"type"},
		),
		notificationsRetriedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_retried_total",
				Help:      "Total number of delayed republishes scheduled after a failed attempt.",
			},
			[]string{"type"},
		),
		notificationsDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dead_lettered_total",
				Help:      "Total number of notifications routed to the dead-letter queue.",
			},
			[]string{"type", "reason"},
		),
		notificationSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_send_duration_seconds",
				Help:      "Transport send duration in seconds grouped by notification type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"type"},
		),
		consumerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "consumer_inflight",
				Help:      "Current number of deliveries being processed grouped by notification type.",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsQueuedTotal,
		m.notificationsDeliveredTotal,
		m.notificationsRetriedTotal,
		m.notificationsDeadLettered,
		m.notificationSendDuration,
		m.consumerInflight,
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

func (m *Metrics) IncQueued(notificationType string) {
	if m == nil {
		return
	}
	m.notificationsQueuedTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) IncDelivered(notificationType string) {
	if m == nil {
		return
	}
	m.notificationsDeliveredTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) IncRetried(notificationType string) {
	if m == nil {
		return
	}
	m.notificationsRetriedTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) IncDeadLettered(notificationType string, reason string) {
	if m == nil {
		return
	}
	m.notificationsDeadLettered.WithLabelValues(normalizeLabel(notificationType), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveSendDuration(notificationType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.notificationSendDuration.WithLabelValues(normalizeLabel(notificationType)).Observe(seconds)
}

func (m *Metrics) IncInFlight(notificationType string) {
	if m == nil {
		return
	}
	m.consumerInflight.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) DecInFlight(notificationType string) {
	if m == nil {
		return
	}
	m.consumerInflight.WithLabelValues(normalizeLabel(notificationType)).Dec()
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

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
