// Package observability provides Prometheus metrics for analysis runs.
package observability

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Analysis    *metrics.AnalysisMetrics
	DiskManager *metrics.DiskManagerMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	analysisMetrics, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "register-analysis-metrics").
			Build()
	}

	diskManagerMetrics, err := metrics.NewDiskManagerMetrics(registry)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "register-diskmanager-metrics").
			Build()
	}

	return &Metrics{
		registry:    registry,
		Analysis:    analysisMetrics,
		DiskManager: diskManagerMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path in the node_exporter textfile
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Category(errors.CategoryFileIO).
				Context("operation", "create-metrics-dir").
				Context("path", dir).
				Build()
		}
	}

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write-metrics-textfile").
			Context("path", path).
			Build()
	}

	GetLogger().Debug("metrics written", logger.String("path", path))
	return nil
}
