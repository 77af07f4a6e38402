package analysis

import (
	"fmt"
	"time"
)

// estimateRemaining extrapolates the time left from the average time per
// completed unit. It returns zero until something has completed.
func estimateRemaining(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	perUnit := elapsed / time.Duration(done)
	return perUnit * time.Duration(total-done)
}

// formatDuration renders d compactly for progress lines: 850ms, 42s,
// 3m 5s, 1h 2m 3s.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + formatDuration(-d)
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Round(time.Millisecond).Milliseconds())
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
