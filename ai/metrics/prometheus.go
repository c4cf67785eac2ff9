// Package metrics provides Prometheus metrics export for the runtime.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports runtime metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Router metrics
	tasksTotal      *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	dispatchLatency *prometheus.HistogramVec
	streamTokens    *prometheus.CounterVec

	// Memory metrics
	retrievalLatency prometheus.Histogram

	// Provider metrics
	providerRequests *prometheus.CounterVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waspd",
			Subsystem: "router",
			Name:      "tasks_total",
			Help:      "Total number of tasks by route, priority and terminal status",
		},
		[]string{"route", "priority", "status"},
	)

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "waspd",
			Subsystem: "router",
			Name:      "queue_depth",
			Help:      "Number of queued tasks",
		},
	)

	e.dispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "waspd",
			Subsystem: "router",
			Name:      "dispatch_latency_seconds",
			Help:      "Time from task submission to dispatch",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"route"},
	)

	e.streamTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waspd",
			Subsystem: "router",
			Name:      "stream_tokens_total",
			Help:      "Total streamed tokens forwarded to submitters",
		},
		[]string{"route"},
	)

	e.retrievalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "waspd",
			Subsystem: "memory",
			Name:      "retrieval_latency_seconds",
			Help:      "Memory retrieval latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waspd",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total upstream provider requests by HTTP status",
		},
		[]string{"provider", "status"},
	)

	registry.MustRegister(
		e.tasksTotal,
		e.queueDepth,
		e.dispatchLatency,
		e.streamTokens,
		e.retrievalLatency,
		e.providerRequests,
	)

	return e
}

// RecordTask counts one task reaching a terminal status.
func (e *Exporter) RecordTask(route, priority, status string) {
	if e == nil {
		return
	}
	e.tasksTotal.WithLabelValues(route, priority, status).Inc()
}

// SetQueueDepth updates the queued-task gauge.
func (e *Exporter) SetQueueDepth(n int) {
	if e == nil {
		return
	}
	e.queueDepth.Set(float64(n))
}

// RecordDispatchLatency observes the submission-to-dispatch delay.
func (e *Exporter) RecordDispatchLatency(route string, d time.Duration) {
	if e == nil {
		return
	}
	e.dispatchLatency.WithLabelValues(route).Observe(d.Seconds())
}

// RecordStreamToken counts one forwarded token.
func (e *Exporter) RecordStreamToken(route string) {
	if e == nil {
		return
	}
	e.streamTokens.WithLabelValues(route).Inc()
}

// RecordRetrieval observes one memory retrieval.
func (e *Exporter) RecordRetrieval(d time.Duration) {
	if e == nil {
		return
	}
	e.retrievalLatency.Observe(d.Seconds())
}

// RecordProviderRequest counts one upstream request.
func (e *Exporter) RecordProviderRequest(provider string, status int) {
	if e == nil {
		return
	}
	e.providerRequests.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
