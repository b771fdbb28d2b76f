package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Generated counts generation attempts by type and outcome
	// (ok, invalid_request, generation_failed, extraction_failed, persist_failed).
	Generated *prometheus.CounterVec

	// GenerationDuration observes the provider call plus extraction.
	GenerationDuration prometheus.Histogram

	// Submitted counts answer submissions by outcome (ok, not_found, failed).
	Submitted *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "endpoint"},
		),
		Generated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessgen_assessments_generated_total",
				Help: "Assessment generation attempts",
			},
			[]string{"type", "outcome"},
		),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assessgen_generation_duration_seconds",
			Help:    "Time spent generating and extracting one assessment",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		Submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assessgen_answers_submitted_total",
				Help: "Answer submissions",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.Generated,
		m.GenerationDuration,
		m.Submitted,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records count and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
