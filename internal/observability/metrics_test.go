package observability

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-singer/batdetect2-CLI/internal/observability/metrics"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called
// concurrently; each instance owns its registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for range numGoroutines {
		go func() {
			defer wg.Done()
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Analysis)
			assert.NotNil(t, m.DiskManager)
		}()
	}
	wg.Wait()
}

func TestAnalysisMetricsCounts(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Analysis.RecordFiles("FOREST_01", metrics.OutcomeSucceeded, 3)
	m.Analysis.RecordFiles("FOREST_01", metrics.OutcomeFailed, 1)
	m.Analysis.RecordFiles("FOREST_01", metrics.OutcomeSkipped, 0)
	m.Analysis.RecordRows("FOREST_01", 3, 1)
	m.Analysis.RecordSite(metrics.SiteCompleted)
	m.Analysis.RecordBatch("committed", 1.5)
	m.Analysis.RecordRun(12, 1700000000)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	files := byName["batdetect_files_total"]
	require.NotNil(t, files)
	assert.Len(t, files.GetMetric(), 2, "zero counts create no series")

	rows := byName["batdetect_rows_written_total"]
	require.NotNil(t, rows)
	var total float64
	for _, metric := range rows.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	assert.InDelta(t, 4, total, 1e-9)

	batches := byName["batdetect_batch_duration_seconds"]
	require.NotNil(t, batches)
	assert.Equal(t, uint64(1), batches.GetMetric()[0].GetHistogram().GetSampleCount())

	assert.Equal(t, 1, testutil.CollectAndCount(m.Analysis, "batdetect_sites_total"))
}

func TestDiskManagerUtilization(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.DiskManager.UpdateDiskUsage(25, 100)
	expected := `
# HELP diskmanager_disk_utilization_percentage Output volume utilization as a percentage
# TYPE diskmanager_disk_utilization_percentage gauge
diskmanager_disk_utilization_percentage 25
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"diskmanager_disk_utilization_percentage"))
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Analysis.RecordFiles("river_02", metrics.OutcomeSucceeded, 2)

	path := filepath.Join(t.TempDir(), "textfile", "batdetect.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `batdetect_files_total{outcome="succeeded",site="river_02"} 2`)
}
