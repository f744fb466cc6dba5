// Package metrics exposes prometheus collectors for healing runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Metrics holds the collectors for runs, steps, failures, fixes and scores.
//
// All metrics are prefixed with "healfactory_":
//   - healfactory_runs_started_total
//   - healfactory_runs_finished_total{status}
//   - healfactory_run_in_progress
//   - healfactory_run_duration_seconds{status}
//   - healfactory_run_score
//   - healfactory_steps_total{step,outcome}
//   - healfactory_step_duration_seconds{step}
//   - healfactory_failures_found_total{language,bug_type}
//   - healfactory_fixes_total{status}
type Metrics struct {
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	InProgress   prometheus.Gauge
	RunDuration  *prometheus.HistogramVec
	Score        prometheus.Histogram
	Steps        *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	Failures     *prometheus.CounterVec
	Fixes        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "healfactory_runs_started_total",
			Help: "Total number of healing runs started",
		}),
		RunsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healfactory_runs_finished_total",
			Help: "Total number of healing runs finished, by final status",
		}, []string{"status"}),
		InProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "healfactory_run_in_progress",
			Help: "1 while a healing run holds the run slot",
		}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healfactory_run_duration_seconds",
			Help:    "Wall-clock duration of healing runs",
			Buckets: prometheus.ExponentialBuckets(15, 2, 8), // 15s to ~32m
		}, []string{"status"}),
		Score: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healfactory_run_score",
			Help:    "Final score of healing runs",
			Buckets: prometheus.LinearBuckets(0, 10, 12),
		}),
		Steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healfactory_steps_total",
			Help: "Total number of pipeline steps executed",
		}, []string{"step", "outcome"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healfactory_step_duration_seconds",
			Help:    "Duration of pipeline steps",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 9), // 10ms to ~11m
		}, []string{"step"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healfactory_failures_found_total",
			Help: "Total number of failures extracted from tool output",
		}, []string{"language", "bug_type"}),
		Fixes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healfactory_fixes_total",
			Help: "Total number of fix attempts, by outcome",
		}, []string{"status"}),
	}
}

// StepDone records one executed step.
func (m *Metrics) StepDone(step string, elapsed time.Duration, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.Steps.WithLabelValues(step, outcome).Inc()
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// FailuresFound counts extracted failures by bug type.
func (m *Metrics) FailuresFound(language string, failures []pipeline.FailureEvent) {
	if language == "" {
		language = pipeline.LangUnknown
	}
	for _, f := range failures {
		m.Failures.WithLabelValues(language, f.BugType).Inc()
	}
}

// FixesMade counts fix records by status.
func (m *Metrics) FixesMade(fixes []pipeline.FixRecord) {
	for _, f := range fixes {
		m.Fixes.WithLabelValues(f.Status).Inc()
	}
}

// RunStarted marks the run slot as taken.
func (m *Metrics) RunStarted() {
	m.RunsStarted.Inc()
	m.InProgress.Set(1)
}

// RunFinished records the outcome of a finished run.
func (m *Metrics) RunFinished(rec *pipeline.RunRecord) {
	m.InProgress.Set(0)
	if rec == nil {
		return
	}
	m.RunsFinished.WithLabelValues(rec.Status).Inc()
	m.RunDuration.WithLabelValues(rec.Status).Observe(rec.DurationSeconds)
	m.Score.Observe(rec.Score.TotalScore)
}
