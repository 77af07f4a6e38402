package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/d-singer/batdetect2-CLI/internal/ledger"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/notification"
)

// maxNotifiedFailures bounds the failed files listed in a notification.
const maxNotifiedFailures = 10

// report logs the summary and hands it to metrics, the ledger and the
// notifier. It runs after cancellation too, on a detached context.
func (o *Orchestrator) report(ctx context.Context, summary *Summary) {
	log := o.log.WithContext(ctx)
	log.Info("analysis finished",
		logger.Int("sites", len(summary.Sites)),
		logger.Int("sites_completed", summary.SitesCompleted()),
		logger.Int("sites_failed", summary.SitesFailed()),
		logger.Int("files_succeeded", summary.FilesSucceeded()),
		logger.Int("files_failed", summary.FilesFailed()),
		logger.Int("files_skipped", summary.FilesSkipped()),
		logger.Int("rows", summary.RowsWritten()),
		logger.Bool("cancelled", summary.Cancelled),
		logger.String("duration", formatDuration(summary.Duration())))

	if o.metrics != nil {
		o.metrics.Analysis.RecordRun(summary.Duration().Seconds(), summary.FinishedAt.Unix())
	}

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if o.ledger != nil {
		if err := o.ledger.SaveRun(reportCtx, RunRecord(summary)); err != nil {
			log.Warn("failed to record run history", logger.Error(err))
		}
	}

	if o.notifier.Enabled() {
		if o.settings.Notification.OnFailureOnly && !summary.HasProblems() && !summary.Cancelled {
			return
		}
		if err := o.notifier.Notify(reportCtx, SummaryNotification(summary)); err != nil {
			log.Warn("failed to send run notification", logger.Error(err))
		}
	}
}

// RunRecord converts a summary into its ledger form.
func RunRecord(summary *Summary) *ledger.RunRecord {
	status := ledger.StatusCompleted
	switch {
	case summary.Cancelled:
		status = ledger.StatusCancelled
	case summary.SitesFailed() > 0:
		status = ledger.StatusFailed
	}

	run := &ledger.RunRecord{
		RunID:          summary.RunID,
		StartedAt:      summary.StartedAt,
		FinishedAt:     summary.FinishedAt,
		AudioRoot:      summary.AudioRoot,
		OutputDir:      summary.OutputDir,
		Status:         status,
		SitesTotal:     len(summary.Sites),
		SitesFailed:    summary.SitesFailed(),
		FilesProcessed: summary.FilesSucceeded(),
		FilesFailed:    summary.FilesFailed(),
		FilesSkipped:   summary.FilesSkipped(),
		RowsWritten:    summary.RowsWritten(),
		Sites:          make([]ledger.SiteRecord, 0, len(summary.Sites)),
	}

	for i := range summary.Sites {
		r := &summary.Sites[i]
		site := ledger.SiteRecord{
			SiteID:     r.SiteID,
			Status:     string(r.Status),
			Discovered: r.Discovered,
			Skipped:    r.Skipped,
			Succeeded:  r.Succeeded,
			Failed:     r.Failed,
			Rows:       r.Rows,
			OutputPath: r.OutputPath,
		}
		if r.Err != nil {
			site.Error = r.Err.Error()
		}
		for _, f := range r.Failures {
			site.Failures = append(site.Failures, ledger.FailureRecord{File: f.Key, Error: errorText(f.Err)})
		}
		run.Sites = append(run.Sites, site)
	}
	return run
}

// SummaryNotification renders a summary as a notification.
func SummaryNotification(summary *Summary) *notification.Notification {
	kind := notification.TypeInfo
	title := "Bat detection run finished"
	switch {
	case summary.Cancelled:
		kind = notification.TypeWarning
		title = "Bat detection run interrupted"
	case summary.SitesFailed() > 0:
		kind = notification.TypeError
		title = "Bat detection run finished with failed sites"
	case summary.FilesFailed() > 0:
		kind = notification.TypeWarning
		title = "Bat detection run finished with failed files"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sites: %d (%d completed, %d failed)\n",
		len(summary.Sites), summary.SitesCompleted(), summary.SitesFailed())
	fmt.Fprintf(&b, "Files: %d processed, %d failed, %d already done\n",
		summary.FilesSucceeded(), summary.FilesFailed(), summary.FilesSkipped())
	fmt.Fprintf(&b, "Rows written: %d\n", summary.RowsWritten())
	fmt.Fprintf(&b, "Duration: %s", formatDuration(summary.Duration().Round(time.Second)))

	listed := 0
	for _, site := range summary.Sites {
		if site.Err != nil {
			fmt.Fprintf(&b, "\nSite %s failed: %v", site.SiteID, site.Err)
		}
		for _, f := range site.Failures {
			if listed == maxNotifiedFailures {
				fmt.Fprintf(&b, "\n... and %d more failed files", summary.FilesFailed()-listed)
				return notification.NewNotification(kind, title, b.String())
			}
			fmt.Fprintf(&b, "\n%s/%s: %s", site.SiteID, f.Key, errorText(f.Err))
			listed++
		}
	}
	return notification.NewNotification(kind, title, b.String())
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
