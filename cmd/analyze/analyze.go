// Package analyze wires the configured collaborators into an analysis run.
package analyze

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/d-singer/batdetect2-CLI/cmd/display"
	"github.com/d-singer/batdetect2-CLI/internal/analysis"
	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/detection"
	"github.com/d-singer/batdetect2-CLI/internal/ledger"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/notification"
	"github.com/d-singer/batdetect2-CLI/internal/observability"
	"github.com/d-singer/batdetect2-CLI/internal/runtime"
	"github.com/d-singer/batdetect2-CLI/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// Run executes one analysis run and prints its summary to out. The
// summary is printed for interrupted runs too.
func Run(ctx context.Context, rt *runtime.Context, out io.Writer) (*analysis.Summary, error) {
	settings := rt.Settings
	log := logger.Global().Module("main")

	if _, err := telemetry.Init(settings.Sentry, rt.Build.Version()); err != nil {
		log.Warn("error reporting disabled", logger.Error(err))
	} else {
		defer telemetry.Flush(telemetryFlushTimeout)
	}

	detector, err := newDetector(rt)
	if err != nil {
		return nil, err
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	opts := []analysis.Option{
		analysis.WithMetrics(m),
		analysis.WithNotifier(notification.NewShoutrrrService(settings.Notification.URLs)),
	}
	if settings.Ledger.Enabled {
		store, err := ledger.Open(settings.Ledger.Path)
		if err != nil {
			log.Warn("run history unavailable", logger.Error(err))
		} else {
			defer func() {
				if cerr := store.Close(); cerr != nil {
					log.Warn("failed to close run history", logger.Error(cerr))
				}
			}()
			opts = append(opts, analysis.WithLedger(store))
		}
	}

	orchestrator, err := analysis.New(settings, detector, opts...)
	if err != nil {
		return nil, err
	}

	summary, runErr := orchestrator.Run(ctx)
	if summary != nil {
		PrintSummary(out, summary)
	}

	if settings.Metrics.File != "" {
		if err := m.WriteTextfile(settings.Metrics.File); err != nil {
			log.Warn("failed to write metrics file", logger.Error(err))
		}
	}

	return summary, runErr
}

// newDetector returns the injected detector, or the BatDetect2 CLI adapter
// after checking that its executable exists.
func newDetector(rt *runtime.Context) (detection.Detector, error) {
	if rt.NewDetector != nil {
		return rt.NewDetector(rt.Settings)
	}
	return defaultDetector(rt.Settings)
}

func defaultDetector(settings *conf.Settings) (detection.Detector, error) {
	binary, err := detection.CheckBinary(settings.Detection.Binary)
	if err != nil {
		return nil, err
	}
	logger.Global().Module("main").Debug("using batdetect2", logger.String("path", binary))
	return detection.NewValidating(detection.NewCLI()), nil
}

// PrintSummary renders the per-site results of a run.
func PrintSummary(out io.Writer, summary *analysis.Summary) {
	rows := make([][]string, 0, len(summary.Sites))
	for i := range summary.Sites {
		s := &summary.Sites[i]
		note := ""
		if s.Err != nil {
			note = s.Err.Error()
		}
		rows = append(rows, []string{
			s.SiteID,
			string(s.Status),
			strconv.Itoa(s.Discovered),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Rows),
			note,
		})
	}

	title := fmt.Sprintf("Run %s", summary.RunID)
	if summary.Cancelled {
		title += " (interrupted)"
	}

	display.Render(out, display.Table{
		Title:   title,
		Headers: []string{"Site", "Status", "Files", "Done before", "Processed", "Failed", "Rows", "Error"},
		Aligns: []display.Alignment{
			display.AlignLeft, display.AlignLeft, display.AlignRight, display.AlignRight,
			display.AlignRight, display.AlignRight, display.AlignRight, display.AlignLeft,
		},
		Rows: rows,
		Footer: []string{
			"Total",
			fmt.Sprintf("%d/%d ok", summary.SitesCompleted(), len(summary.Sites)),
			strconv.Itoa(summary.FilesDiscovered()),
			strconv.Itoa(summary.FilesSkipped()),
			strconv.Itoa(summary.FilesSucceeded()),
			strconv.Itoa(summary.FilesFailed()),
			strconv.Itoa(summary.RowsWritten()),
			summary.Duration().Round(time.Second).String(),
		},
	})
}
