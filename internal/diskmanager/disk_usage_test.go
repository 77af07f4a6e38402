package diskmanager

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/observability/metrics"
)

func stubUsage(t *testing.T, stat *disk.UsageStat, err error) *[]string {
	t.Helper()
	var seen []string
	orig := usage
	usage = func(path string) (*disk.UsageStat, error) {
		seen = append(seen, path)
		return stat, err
	}
	t.Cleanup(func() { usage = orig })
	return &seen
}

func TestGetDetailedDiskUsageRealVolume(t *testing.T) {
	t.Parallel()

	info, err := GetDetailedDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, info.TotalBytes)
}

func TestGetDetailedDiskUsageMissingPathUsesParent(t *testing.T) {
	dir := t.TempDir()
	seen := stubUsage(t, &disk.UsageStat{Total: 100, Used: 40, Free: 60}, nil)

	info, err := GetDetailedDiskUsage(filepath.Join(dir, "02_BATDETECT2", "nested"))
	require.NoError(t, err)
	assert.Equal(t, dir, info.Path)
	assert.Equal(t, []string{dir}, *seen)
	assert.Equal(t, uint64(60), info.FreeBytes)
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	stubUsage(t, &disk.UsageStat{Total: 1000 * bytesPerMB, Used: 950 * bytesPerMB, Free: 50 * bytesPerMB}, nil)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewDiskManagerMetrics(registry)
	require.NoError(t, err)

	_, err = CheckFreeSpace(dir, 10, m)
	require.NoError(t, err)

	_, err = CheckFreeSpace(dir, 100, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLowDiskSpace)
	assert.True(t, errors.IsCategory(err, errors.CategorySystem))

	_, err = CheckFreeSpace(dir, 0, nil)
	require.NoError(t, err, "zero minimum disables the threshold")

	assert.Equal(t, 4, testutil.CollectAndCount(m))
}

func TestCheckFreeSpaceUsageError(t *testing.T) {
	stubUsage(t, nil, errors.NewStd("statfs failed"))

	_, err := CheckFreeSpace(t.TempDir(), 10, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLowDiskSpace)
}
