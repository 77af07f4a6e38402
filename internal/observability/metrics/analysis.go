// Package metrics provides custom Prometheus metrics for batdetect2-cli.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics counts the work of one analysis run.
type AnalysisMetrics struct {
	registry *prometheus.Registry

	filesTotal           *prometheus.CounterVec
	rowsWrittenTotal     *prometheus.CounterVec
	sitesTotal           *prometheus.CounterVec
	batchDurationSeconds prometheus.Histogram
	batchesTotal         *prometheus.CounterVec
	runDurationSeconds   prometheus.Gauge
	lastRunTimestamp     prometheus.Gauge
}

// NewAnalysisMetrics creates and registers new analysis metrics
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() {
	m.filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batdetect_files_total",
			Help: "Audio files handled, by site and outcome",
		},
		[]string{"site", "outcome"}, // outcome: succeeded, failed, skipped
	)

	m.rowsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batdetect_rows_written_total",
			Help: "Rows committed to site output files",
		},
		[]string{"site", "kind"}, // kind: detection, sentinel
	)

	m.sitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batdetect_sites_total",
			Help: "Sites handled, by final status",
		},
		[]string{"status"},
	)

	m.batchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batdetect_batch_duration_seconds",
		Help:    "Time taken to detect and commit one batch",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount16),
	})

	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batdetect_batches_total",
			Help: "Batches processed, by status",
		},
		[]string{"status"}, // status: committed, failed
	)

	m.runDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batdetect_run_duration_seconds",
		Help: "Wall time of the last run",
	})

	m.lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batdetect_last_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})
}

// Describe implements the Collector interface
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.filesTotal.Describe(ch)
	m.rowsWrittenTotal.Describe(ch)
	m.sitesTotal.Describe(ch)
	m.batchDurationSeconds.Describe(ch)
	m.batchesTotal.Describe(ch)
	m.runDurationSeconds.Describe(ch)
	m.lastRunTimestamp.Describe(ch)
}

// Collect implements the Collector interface
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.filesTotal.Collect(ch)
	m.rowsWrittenTotal.Collect(ch)
	m.sitesTotal.Collect(ch)
	m.batchDurationSeconds.Collect(ch)
	m.batchesTotal.Collect(ch)
	m.runDurationSeconds.Collect(ch)
	m.lastRunTimestamp.Collect(ch)
}

// RecordFiles adds count files with the given outcome for a site
func (m *AnalysisMetrics) RecordFiles(site, outcome string, count int) {
	if count <= 0 {
		return
	}
	m.filesTotal.WithLabelValues(site, outcome).Add(float64(count))
}

// RecordRows records committed detection and sentinel rows for a site
func (m *AnalysisMetrics) RecordRows(site string, detections, sentinels int) {
	if detections > 0 {
		m.rowsWrittenTotal.WithLabelValues(site, RowKindDetection).Add(float64(detections))
	}
	if sentinels > 0 {
		m.rowsWrittenTotal.WithLabelValues(site, RowKindSentinel).Add(float64(sentinels))
	}
}

// RecordSite records a site reaching its final status
func (m *AnalysisMetrics) RecordSite(status string) {
	m.sitesTotal.WithLabelValues(status).Inc()
}

// RecordBatch records one batch and its duration in seconds
func (m *AnalysisMetrics) RecordBatch(status string, seconds float64) {
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchDurationSeconds.Observe(seconds)
}

// RecordRun records the wall time of a finished run
func (m *AnalysisMetrics) RecordRun(seconds float64, finishedUnix int64) {
	m.runDurationSeconds.Set(seconds)
	m.lastRunTimestamp.Set(float64(finishedUnix))
}
