// Package metrics bundles the Prometheus collectors of the engage service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing, so
// services can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	webhookInbound *prometheus.CounterVec
	webhookStatus  *prometheus.CounterVec
	contactChanges *prometheus.CounterVec
	jobs           *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engage_http_requests_total",
				Help: "Total count of HTTP requests received.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engage_http_request_duration_seconds",
				Help:    "Histogram of request durations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		webhookInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engage_webhook_messages_total",
				Help: "Inbound webhook messages by provider and outcome.",
			},
			[]string{"provider", "result"},
		),
		webhookStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engage_webhook_status_updates_total",
				Help: "Delivery status callbacks by provider and outcome.",
			},
			[]string{"provider", "result"},
		),
		contactChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engage_campaign_contact_transitions_total",
				Help: "Applied campaign contact transitions by target status.",
			},
			[]string{"status"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engage_jobs_processed_total",
				Help: "Background jobs processed by type and outcome.",
			},
			[]string{"type", "result"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.webhookInbound, m.webhookStatus, m.contactChanges, m.jobs,
	)
	return m
}

func (m *Metrics) InboundMessage(provider, result string) {
	if m == nil {
		return
	}
	m.webhookInbound.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) StatusUpdate(provider, result string) {
	if m == nil {
		return
	}
	m.webhookStatus.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) ContactTransition(status string) {
	if m == nil {
		return
	}
	m.contactChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) JobProcessed(jobType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobs.WithLabelValues(jobType, result).Inc()
}

// Middleware records request counts and latency. The route label is the
// registered pattern (/conversations/:id/read), not the raw path, to keep
// cardinality bounded.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes /metrics from the service registry.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
