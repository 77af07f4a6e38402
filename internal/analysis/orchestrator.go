// Package analysis runs detection over every site under the audio root and
// merges the results into one output file per site.
package analysis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/d-singer/batdetect2-CLI/internal/batcher"
	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/detection"
	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/diskmanager"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/ledger"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/notification"
	"github.com/d-singer/batdetect2-CLI/internal/observability"
	"github.com/d-singer/batdetect2-CLI/internal/observability/metrics"
	"github.com/d-singer/batdetect2-CLI/internal/output"
	"github.com/d-singer/batdetect2-CLI/internal/resume"
)

// reportTimeout bounds ledger and notification work after the run, which
// also happens after cancellation.
const reportTimeout = 30 * time.Second

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the orchestrator logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithFs sets the filesystem sites are discovered on.
func WithFs(fsys afero.Fs) Option {
	return func(o *Orchestrator) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLedger records each run in the run history.
func WithLedger(s *ledger.Store) Option {
	return func(o *Orchestrator) { o.ledger = s }
}

// WithNotifier sends a run summary when the run ends.
func WithNotifier(n *notification.Service) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// Orchestrator drives one analysis run.
type Orchestrator struct {
	settings *conf.Settings
	detector detection.Detector
	cfg      detection.Config

	fs       afero.Fs
	log      logger.Logger
	metrics  *observability.Metrics
	ledger   *ledger.Store
	notifier *notification.Service
}

// New validates settings and creates an orchestrator.
func New(settings *conf.Settings, detector detection.Detector, opts ...Option) (*Orchestrator, error) {
	if settings == nil {
		return nil, errors.ConfigurationError(errors.NewStd("settings are required"))
	}
	if detector == nil {
		return nil, errors.ConfigurationError(errors.NewStd("a detector is required"))
	}
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		settings: settings,
		detector: detector,
		cfg:      detectionConfig(settings),
		fs:       afero.NewOsFs(),
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// detectionConfig maps settings onto model parameters.
func detectionConfig(settings *conf.Settings) detection.Config {
	d := settings.Detection
	return detection.Config{
		Threshold:           d.Threshold,
		TimeExpansionFactor: d.TimeExpansionFactor,
		ModelPath:           d.ModelPath,
		Binary:              d.Binary,
		ExtraArgs:           d.ExtraArgs,
		Timeout:             d.Timeout,
		ValidateAudio:       d.ValidateAudio,
	}
}

// Run processes every site. Only configuration errors and cancellation are
// returned; per-file and per-site problems are reported in the summary.
// On cancellation the partial summary is returned with the error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		AudioRoot: o.settings.Input.AudioRoot,
		OutputDir: o.settings.Output.Dir,
		StartedAt: time.Now(),
	}
	ctx = logger.WithTraceID(ctx, summary.RunID)
	log := o.log.WithContext(ctx)

	sites, err := discovery.Discover(o.fs, o.settings.Input.AudioRoot, o.settings.Input.Extensions)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(o.settings.Output.Dir, 0o755); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "create_output_dir").
			Context("path", o.settings.Output.Dir).
			Build()
	}
	o.checkDiskSpace(log)

	workers := o.siteWorkers(log)
	log.Info("starting analysis",
		logger.String("audio_root", o.settings.Input.AudioRoot),
		logger.String("output_dir", o.settings.Output.Dir),
		logger.Int("sites", len(sites)),
		logger.Int("batch_size", o.settings.Batch.Size),
		logger.Int("site_workers", workers))

	summary.Sites = make([]SiteResult, len(sites))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range sites {
		g.Go(func() error {
			summary.Sites[i] = o.processSite(ctx, sites[i])
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = time.Now()
	summary.Cancelled = ctx.Err() != nil

	o.report(ctx, summary)

	if summary.Cancelled {
		return summary, errors.New(ctx.Err()).
			Category(errors.CategoryCancellation).
			Context("run_id", summary.RunID).
			Build()
	}
	return summary, nil
}

// siteWorkers returns the number of sites processed at once. Parallel
// sites require a detector that declares itself safe for concurrent use.
func (o *Orchestrator) siteWorkers(log logger.Logger) int {
	workers := max(o.settings.Batch.SiteWorkers, 1)
	if workers > 1 && !detection.IsConcurrencySafe(o.detector) {
		log.Warn("detector is not safe for concurrent use, processing sites sequentially",
			logger.Int("requested_workers", workers))
		return 1
	}
	return workers
}

func (o *Orchestrator) checkDiskSpace(log logger.Logger) {
	var dm *metrics.DiskManagerMetrics
	if o.metrics != nil {
		dm = o.metrics.DiskManager
	}
	if _, err := diskmanager.CheckFreeSpace(o.settings.Output.Dir, o.settings.Disk.MinFreeMB, dm); err != nil {
		log.Warn("output volume check", logger.Error(err))
	}
}

// processSite runs every pending batch of one site. It never returns an
// error: site-fatal problems end the site and are recorded in its result.
func (o *Orchestrator) processSite(ctx context.Context, site discovery.Site) (res SiteResult) {
	start := time.Now()
	log := o.log.WithContext(ctx).With(logger.String("site", site.ID))
	res = SiteResult{
		SiteID:     site.ID,
		OutputPath: output.Path(o.settings.Output.Dir, site.ID),
		Discovered: len(site.Files),
		States:     make(map[string]discovery.FileState, len(site.Files)),
	}
	defer func() {
		res.Duration = time.Since(start)
		o.recordSite(&res)
	}()

	for _, f := range site.Files {
		res.States[f.Key] = discovery.Discovered
	}

	if site.Empty {
		warn := errors.Newf("site %s contains no audio files", site.ID).
			Category(errors.CategoryDiscovery).
			SiteContext(site.ID).
			Build()
		log.Warn("skipping site", logger.Error(warn))
		res.Status = SiteEmpty
		return res
	}

	if ctx.Err() != nil {
		res.Status = SiteCancelled
		return res
	}

	w, err := output.OpenSiteWriter(o.settings.Output.Dir, site.ID)
	if err != nil {
		log.Error("cannot open site output", logger.Error(err))
		res.Status = SiteFailed
		res.Err = err
		return res
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			log.Warn("failed to close site output", logger.Error(cerr))
		}
	}()
	res.Recovery = w.Recovery()

	processed, rerr := resume.LoadProcessed(w.Path())
	if rerr != nil {
		log.Debug("prior output only partially readable, unreadable files will be processed again",
			logger.Error(rerr))
		res.ResumeErr = rerr
	}

	pending, skipped := resume.Filter(site, processed)
	res.Skipped = skipped
	pendingKeys := make(map[string]struct{}, len(pending))
	for _, f := range pending {
		pendingKeys[f.Key] = struct{}{}
		res.States[f.Key] = discovery.Unprocessed
	}
	for _, f := range site.Files {
		if _, ok := pendingKeys[f.Key]; !ok {
			res.States[f.Key] = discovery.AlreadyDone
		}
	}

	if len(pending) == 0 {
		log.Info("site already processed", logger.Int("files", res.Discovered))
		res.Status = SiteCompleted
		return res
	}

	batches, err := batcher.Split(pending, o.settings.Batch.Size)
	if err != nil {
		res.Status = SiteFailed
		res.Err = err
		return res
	}

	log.Info("processing site",
		logger.Int("files", res.Discovered),
		logger.Int("already_processed", skipped),
		logger.Int("pending", len(pending)),
		logger.Int("batches", len(batches)))

	wholeFailures := 0
	for _, b := range batches {
		if ctx.Err() != nil {
			res.Status = SiteCancelled
			return res
		}

		outcome := o.runBatch(ctx, log, w, site.ID, b, &res)
		switch outcome {
		case batchCancelled:
			res.Status = SiteCancelled
			return res
		case batchMergeFailed:
			res.Status = SiteFailed
			return res
		case batchInvocationFailed:
			wholeFailures++
		}

		elapsed := time.Since(start)
		done := b.Index + 1
		log.Info("batch complete",
			logger.String("progress", formatProgress(done, len(batches))),
			logger.Int("succeeded", res.Succeeded),
			logger.Int("failed", res.Failed),
			logger.String("elapsed", formatDuration(elapsed)),
			logger.String("eta", formatDuration(estimateRemaining(elapsed, done, len(batches)))))
	}

	if wholeFailures == len(batches) {
		res.Status = SiteFailed
		res.Err = errors.Newf("every detection invocation for site %s failed", site.ID).
			Category(errors.CategoryDetection).
			SiteContext(site.ID).
			Context("batches", len(batches)).
			Build()
		log.Error("site failed", logger.Error(res.Err))
		return res
	}

	res.Status = SiteCompleted
	log.Info("site complete",
		logger.Int("succeeded", res.Succeeded),
		logger.Int("failed", res.Failed),
		logger.Int("rows", res.Rows),
		logger.String("duration", formatDuration(time.Since(start))))
	return res
}

type batchOutcome int

const (
	batchCommitted batchOutcome = iota
	batchInvocationFailed
	batchMergeFailed
	batchCancelled
)

// runBatch detects one batch and commits its rows. Results of a cancelled
// invocation are discarded so the output stays at a batch boundary.
func (o *Orchestrator) runBatch(ctx context.Context, log logger.Logger, w *output.SiteWriter, siteID string, b batcher.Batch, res *SiteResult) batchOutcome {
	start := time.Now()
	outcome := batchCommitted
	res.Batches++

	results, err := o.detector.Detect(ctx, b.Files, o.cfg)
	if err != nil {
		if ctx.Err() != nil || errors.IsCategory(err, errors.CategoryCancellation) {
			log.Info("batch interrupted, results discarded", logger.Int("batch", b.Index+1))
			return batchCancelled
		}
		log.Warn("detection invocation failed, batch files will be retried next run",
			logger.Int("batch", b.Index+1),
			logger.Int("files", len(b.Files)),
			logger.Error(err))
		results = detection.FailAll(b.Files, err)
		outcome = batchInvocationFailed
	}
	if ctx.Err() != nil {
		log.Info("batch interrupted, results discarded", logger.Int("batch", b.Index+1))
		return batchCancelled
	}

	rows, succeeded, failed := output.BuildRows(siteID, results)
	if err := w.AppendBatch(rows); err != nil {
		log.Error("cannot commit batch, abandoning site", logger.Int("batch", b.Index+1), logger.Error(err))
		res.Err = err
		o.recordBatch("failed", start)
		return batchMergeFailed
	}

	for _, r := range succeeded {
		res.States[r.File.Key] = discovery.Succeeded
		if len(r.Detections) == 0 {
			res.Sentinels++
		} else {
			res.Detections += len(r.Detections)
		}
	}
	for _, r := range failed {
		res.States[r.File.Key] = discovery.Failed
		res.Failures = append(res.Failures, FileFailure{Key: r.File.Key, Err: r.Err})
		if outcome != batchInvocationFailed {
			log.Warn("file failed", logger.String("file", r.File.Key), logger.Error(r.Err))
		}
	}
	res.Succeeded += len(succeeded)
	res.Failed += len(failed)
	res.Rows += len(rows)

	if o.metrics != nil {
		a := o.metrics.Analysis
		a.RecordFiles(siteID, metrics.OutcomeSucceeded, len(succeeded))
		a.RecordFiles(siteID, metrics.OutcomeFailed, len(failed))
		detections, sentinels := 0, 0
		for _, r := range rows {
			if r.IsSentinel() {
				sentinels++
			} else {
				detections++
			}
		}
		a.RecordRows(siteID, detections, sentinels)
	}
	o.recordBatch("committed", start)
	return outcome
}

func (o *Orchestrator) recordBatch(status string, start time.Time) {
	if o.metrics != nil {
		o.metrics.Analysis.RecordBatch(status, time.Since(start).Seconds())
	}
}

func (o *Orchestrator) recordSite(res *SiteResult) {
	if o.metrics == nil {
		return
	}
	a := o.metrics.Analysis
	a.RecordFiles(res.SiteID, metrics.OutcomeSkipped, res.Skipped)
	switch res.Status {
	case SiteCompleted:
		a.RecordSite(metrics.SiteCompleted)
	case SiteFailed:
		a.RecordSite(metrics.SiteFailed)
	case SiteEmpty:
		a.RecordSite(metrics.SiteEmpty)
	}
}

// formatProgress renders "batch n/m".
func formatProgress(done, total int) string {
	return fmt.Sprintf("batch %d/%d", done, total)
}
