// Package diskmanager checks free space on the volume holding the output
// directory before a run starts writing.
package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/observability/metrics"
)

const bytesPerMB = 1024 * 1024

// ErrLowDiskSpace reports that free space is below the configured minimum.
var ErrLowDiskSpace = errors.NewStd("low disk space")

// usage is swapped in tests.
var usage = disk.Usage

// DiskSpaceInfo holds detailed disk space information.
type DiskSpaceInfo struct {
	Path       string // path actually measured
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
}

// GetDetailedDiskUsage returns usage of the filesystem holding path. When
// path does not exist yet its nearest existing parent is measured.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	target := existingAncestor(path)

	stat, err := usage(target)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "disk-usage").
			Context("path", target).
			Build()
	}

	return DiskSpaceInfo{
		Path:       target,
		TotalBytes: stat.Total,
		UsedBytes:  stat.Used,
		FreeBytes:  stat.Free,
	}, nil
}

// CheckFreeSpace measures the volume holding path and returns
// ErrLowDiskSpace when fewer than minFreeMB megabytes are free. A zero
// minimum disables the threshold but still records usage. m may be nil.
func CheckFreeSpace(path string, minFreeMB uint64, m *metrics.DiskManagerMetrics) (DiskSpaceInfo, error) {
	start := time.Now()
	info, err := GetDetailedDiskUsage(path)
	if m != nil {
		m.RecordDiskCheckDuration(time.Since(start).Seconds())
	}
	if err != nil {
		return info, err
	}

	if m != nil {
		m.UpdateDiskUsage(info.UsedBytes, info.TotalBytes)
	}

	GetLogger().Debug("disk usage checked",
		logger.String("path", info.Path),
		logger.Uint64("free_bytes", info.FreeBytes),
		logger.Uint64("total_bytes", info.TotalBytes))

	if minFreeMB > 0 && info.FreeBytes < minFreeMB*bytesPerMB {
		return info, errors.New(fmt.Errorf("%w: %d MB free on %s, want at least %d MB",
			ErrLowDiskSpace, info.FreeBytes/bytesPerMB, info.Path, minFreeMB)).
			Category(errors.CategorySystem).
			Context("free_bytes", info.FreeBytes).
			Context("min_free_mb", minFreeMB).
			Build()
	}

	return info, nil
}

// existingAncestor walks up from path to the first directory that exists.
func existingAncestor(path string) string {
	current := filepath.Clean(path)
	if abs, err := filepath.Abs(current); err == nil {
		current = abs
	}
	for {
		if _, err := os.Stat(current); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return current
		}
		current = parent
	}
}
