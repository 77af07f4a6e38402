// Package metrics provides disk management metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DiskManagerMetrics contains Prometheus metrics for the output volume
type DiskManagerMetrics struct {
	registry *prometheus.Registry

	diskUsageBytes            prometheus.Gauge
	diskTotalBytes            prometheus.Gauge
	diskUtilizationPercentage prometheus.Gauge
	diskCheckDurationSeconds  prometheus.Histogram
}

// NewDiskManagerMetrics creates and registers new disk manager metrics
func NewDiskManagerMetrics(registry *prometheus.Registry) (*DiskManagerMetrics, error) {
	m := &DiskManagerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DiskManagerMetrics) initMetrics() {
	m.diskUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_usage_bytes",
		Help: "Disk usage of the output volume in bytes",
	})

	m.diskTotalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_total_bytes",
		Help: "Total size of the output volume in bytes",
	})

	m.diskUtilizationPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "diskmanager_disk_utilization_percentage",
		Help: "Output volume utilization as a percentage",
	})

	m.diskCheckDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "diskmanager_disk_check_duration_seconds",
		Help:    "Time taken to check disk usage",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10), // 1ms to ~1s
	})
}

// Describe implements the Collector interface
func (m *DiskManagerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.diskUsageBytes.Describe(ch)
	m.diskTotalBytes.Describe(ch)
	m.diskUtilizationPercentage.Describe(ch)
	m.diskCheckDurationSeconds.Describe(ch)
}

// Collect implements the Collector interface
func (m *DiskManagerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.diskUsageBytes.Collect(ch)
	m.diskTotalBytes.Collect(ch)
	m.diskUtilizationPercentage.Collect(ch)
	m.diskCheckDurationSeconds.Collect(ch)
}

// UpdateDiskUsage updates disk usage metrics
func (m *DiskManagerMetrics) UpdateDiskUsage(usedBytes, totalBytes uint64) {
	m.diskUsageBytes.Set(float64(usedBytes))
	m.diskTotalBytes.Set(float64(totalBytes))

	var utilizationPercentage float64
	if totalBytes > 0 {
		utilizationPercentage = float64(usedBytes) / float64(totalBytes) * PercentageFactor
	}
	m.diskUtilizationPercentage.Set(utilizationPercentage)
}

// RecordDiskCheckDuration records the time taken to check disk usage
func (m *DiskManagerMetrics) RecordDiskCheckDuration(duration float64) {
	m.diskCheckDurationSeconds.Observe(duration)
}
