package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for the report pipeline.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsActive   prometheus.Gauge
	jobDuration  *prometheus.HistogramVec
	stagesTotal  *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	renderTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportforge_jobs_total",
				Help: "Jobs reaching a terminal state, partitioned by outcome",
			},
			[]string{"outcome"},
		),
		jobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reportforge_jobs_active",
				Help: "Jobs currently executing their pipeline",
			},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportforge_job_duration_seconds",
				Help:    "End-to-end pipeline duration per job",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportforge_stage_executions_total",
				Help: "Stage executions partitioned by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reportforge_stage_latency_seconds",
				Help:    "Generation backend round-trip latency per stage",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		renderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reportforge_renders_total",
				Help: "Document render attempts partitioned by outcome",
			},
			[]string{"outcome"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobsActive,
		m.jobDuration,
		m.stagesTotal,
		m.stageLatency,
		m.renderTotal,
	)
	return m
}

// JobStarted marks a job as actively executing.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsActive.Inc()
}

// JobFinished records the terminal outcome and duration of a job.
func (m *Metrics) JobFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// StageExecuted records one stage execution.
func (m *Metrics) StageExecuted(stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(stage, outcome).Inc()
	if outcome == "success" {
		m.stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// RenderAttempted records one document render attempt.
func (m *Metrics) RenderAttempted(outcome string) {
	if m == nil {
		return
	}
	m.renderTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
