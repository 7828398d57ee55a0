// Package metrics provides Prometheus metrics instrumentation for the
// scenarios command.
//
// Metrics exposed:
//   - analogflow_collect_seconds: Histogram of flow source collection duration
//   - analogflow_selection_seconds: Histogram of per-station selection duration
//   - analogflow_selection_tries: Histogram of amplitude attempts per selection
//   - analogflow_outcomes_total: Counter of station outcomes by status
//   - analogflow_files_total: Counter of processed files by result
//   - analogflow_registry_years: Gauge of distinct years in the registry
//   - analogflow_last_batch_timestamp_seconds: Gauge of the last completed batch
//   - analogflow_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scenarios command.
type Metrics struct {
	CollectSeconds     prometheus.Histogram
	SelectionSeconds   prometheus.Histogram
	SelectionTries     prometheus.Histogram
	OutcomesTotal      *prometheus.CounterVec
	FilesTotal         *prometheus.CounterVec
	RegistryYears      prometheus.Gauge
	LastBatchTimestamp prometheus.Gauge
	ErrorsTotal        *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "analogflow_collect_seconds",
			Help:    "Time spent collecting flow files from the source",
			Buckets: prometheus.DefBuckets,
		}),

		SelectionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "analogflow_selection_seconds",
			Help:    "Time spent selecting an analog year for one station",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		SelectionTries: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "analogflow_selection_tries",
			Help:    "Amplitude attempts per station selection",
			Buckets: prometheus.LinearBuckets(1, 2, 13),
		}),

		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analogflow_outcomes_total",
			Help: "Station outcomes by status",
		}, []string{"status"}),

		FilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analogflow_files_total",
			Help: "Processed flow files by result",
		}, []string{"result"}),

		RegistryYears: factory.NewGauge(prometheus.GaugeOpts{
			Name: "analogflow_registry_years",
			Help: "Distinct analog years committed in the current batch",
		}),

		LastBatchTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "analogflow_last_batch_timestamp_seconds",
			Help: "Unix time of the last completed batch",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "analogflow_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting sources.
func (m *Metrics) RecordCollect(seconds float64) {
	m.CollectSeconds.Observe(seconds)
}

// RecordOutcome records one station outcome.
func (m *Metrics) RecordOutcome(status string, seconds float64, tries int) {
	m.OutcomesTotal.WithLabelValues(status).Inc()
	m.SelectionSeconds.Observe(seconds)
	if tries > 0 {
		m.SelectionTries.Observe(float64(tries))
	}
}

// RecordFile records a processed file. result is "ok" or "aborted".
func (m *Metrics) RecordFile(result string) {
	m.FilesTotal.WithLabelValues(result).Inc()
}

// SetRegistryYears sets the number of distinct committed years.
func (m *Metrics) SetRegistryYears(n int) {
	m.RegistryYears.Set(float64(n))
}

// MarkBatch sets the last batch timestamp to unixSeconds.
func (m *Metrics) MarkBatch(unixSeconds float64) {
	m.LastBatchTimestamp.Set(unixSeconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
