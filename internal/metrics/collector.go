// Package metrics records generation outcomes as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Collector holds the generation metrics
type Collector struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration prometheus.Histogram
	viewRequestsTotal  *prometheus.CounterVec
	viewDuration       *prometheus.HistogramVec
	inFlight           prometheus.Gauge
	rejectedTotal      prometheus.Counter
}

// NewCollector registers the generation metrics on reg
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of three-view generation runs",
			},
			[]string{"status"},
		),
		generationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of a complete three-view generation run",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
		),
		viewRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_requests_total",
				Help:      "Total number of single view generation requests",
			},
			[]string{"view", "status"},
		),
		viewDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "view_request_duration_seconds",
				Help:      "Duration of a single view generation request",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"view"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "generations_in_flight",
				Help:      "Number of generation runs currently in progress",
			},
		),
		rejectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_rejected_total",
				Help:      "Generation triggers rejected because a run was already in progress",
			},
		),
	}
}

// RecordView records a single view request
func (c *Collector) RecordView(view string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.viewRequestsTotal.WithLabelValues(view, statusOf(err)).Inc()
	c.viewDuration.WithLabelValues(view).Observe(duration.Seconds())
}

// GenerationStarted marks a generation run as in flight
func (c *Collector) GenerationStarted() {
	if c == nil {
		return
	}
	c.inFlight.Inc()
}

// GenerationFinished records the outcome of a generation run
func (c *Collector) GenerationFinished(err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.inFlight.Dec()
	c.generationsTotal.WithLabelValues(statusOf(err)).Inc()
	c.generationDuration.Observe(duration.Seconds())
}

// GenerationRejected counts a trigger refused by the re-entrancy guard
func (c *Collector) GenerationRejected() {
	if c == nil {
		return
	}
	c.rejectedTotal.Inc()
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
