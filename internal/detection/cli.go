package detection

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

var (
	commandContext = exec.CommandContext
	lookPath       = exec.LookPath
)

// maxOutputTail bounds how much model output is kept for error reports.
const maxOutputTail = 4096

// CLIOption configures the CLI adapter.
type CLIOption func(*CLI)

// WithWorkDir sets where per-batch staging directories are created.
func WithWorkDir(dir string) CLIOption {
	return func(c *CLI) {
		if dir != "" {
			c.workDir = dir
		}
	}
}

// WithLogger overrides the adapter logger.
func WithLogger(l logger.Logger) CLIOption {
	return func(c *CLI) {
		if l != nil {
			c.log = l
		}
	}
}

// CLI runs the batdetect2 command-line tool on one batch at a time.
//
// Each batch is staged into a private directory of links named
// "<index>_<basename>" so that files with equal base names in different
// subfolders cannot collide, and predictions are read back from the JSON
// file the tool writes next to each input name.
type CLI struct {
	workDir string
	log     logger.Logger
}

// NewCLI creates the adapter.
func NewCLI(opts ...CLIOption) *CLI {
	c := &CLI{log: GetLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConcurrencySafe is true: every invocation uses its own staging directory.
func (c *CLI) ConcurrencySafe() bool {
	return true
}

// CheckBinary resolves the model executable on PATH. A missing executable
// is a configuration error: no batch could succeed without it.
func CheckBinary(binary string) (string, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	resolved, err := lookPath(binary)
	if err != nil {
		return "", errors.New(err).
			Component("detection").
			Category(errors.CategoryConfiguration).
			Context("binary", binary).
			Build()
	}
	return resolved, nil
}

// stagedFile links a batch position to its staged name.
type stagedFile struct {
	index int
	name  string
}

// Detect stages files, runs the model once and collects per-file results.
func (c *CLI) Detect(ctx context.Context, files []discovery.AudioFile, cfg Config) ([]FileResult, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}

	batchDir, err := os.MkdirTemp(c.workDir, "batdetect2-batch-")
	if err != nil {
		return nil, c.invocationError(err, "create_staging_dir", nil)
	}
	defer func() {
		if rerr := os.RemoveAll(batchDir); rerr != nil {
			c.log.Warn("failed to remove staging directory", logger.String("dir", batchDir), logger.Error(rerr))
		}
	}()

	inDir := filepath.Join(batchDir, "in")
	outDir := filepath.Join(batchDir, "out")
	for _, dir := range []string{inDir, outDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return nil, c.invocationError(err, "create_staging_dir", nil)
		}
	}

	results := make([]FileResult, len(files))
	staged := make([]stagedFile, 0, len(files))
	for i, f := range files {
		results[i].File = f
		name := fmt.Sprintf("%04d_%s", i, filepath.Base(f.Path))
		if err := stageFile(f.Path, filepath.Join(inDir, name)); err != nil {
			results[i].Err = fileFailure(err, f)
			continue
		}
		staged = append(staged, stagedFile{index: i, name: name})
	}
	if len(staged) == 0 {
		return results, nil
	}

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	args := buildArgs(inDir, outDir, cfg)
	cmd := commandContext(runCtx, cfg.Binary, args...) //nolint:gosec // binary and args come from configuration
	tail := &tailBuffer{limit: maxOutputTail}
	cmd.Stdout = tail
	cmd.Stderr = tail

	start := time.Now()
	c.log.Debug("invoking detection model",
		logger.String("binary", cfg.Binary),
		logger.Int("files", len(staged)),
		logger.Any("args", args))
	runErr := cmd.Run()

	if ctx.Err() != nil {
		return nil, errors.New(ctx.Err()).
			Component("detection").
			Category(errors.CategoryCancellation).
			Build()
	}
	if runErr != nil && runCtx.Err() == context.DeadlineExceeded {
		timeout := errors.New(fmt.Errorf("batch exceeded timeout %s: %w", cfg.Timeout, runErr)).
			Component("detection").
			Category(errors.CategoryTimeout).
			Timing("run_model", time.Since(start)).
			Context("files", len(staged)).
			Build()
		return nil, c.invocationError(timeout, "run_model", tail)
	}

	produced := 0
	for _, s := range staged {
		detections, perr := readPredictions(outDir, s.name)
		if perr != nil {
			results[s.index].Err = fileFailure(perr, files[s.index])
			continue
		}
		results[s.index].Detections = detections
		produced++
	}

	if runErr != nil {
		if produced == 0 {
			return nil, c.invocationError(runErr, "run_model", tail)
		}
		c.log.Warn("detection model exited with error after partial output",
			logger.Error(runErr),
			logger.Int("produced", produced),
			logger.Int("staged", len(staged)),
			logger.String("output_tail", tail.String()))
	}

	c.log.Debug("detection model finished",
		logger.Int("produced", produced),
		logger.Duration("elapsed", time.Since(start)))

	return results, nil
}

// buildArgs assembles the batdetect2 detect command line.
func buildArgs(inDir, outDir string, cfg Config) []string {
	args := []string{
		"detect",
		inDir,
		outDir,
		strconv.FormatFloat(cfg.Threshold, 'f', -1, 64),
		"--time_expansion_factor", strconv.FormatFloat(cfg.TimeExpansionFactor, 'f', -1, 64),
		"--save_preds_if_empty",
	}
	if cfg.ModelPath != "" {
		args = append(args, "--model_path", cfg.ModelPath)
	}
	return append(args, cfg.ExtraArgs...)
}

// stageFile exposes src under dst, preferring a symlink and falling back to
// a hard link where symlinks are not permitted.
func stageFile(src, dst string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}
	if err := os.Symlink(abs, dst); err == nil {
		return nil
	}
	if err := os.Link(abs, dst); err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(src), err)
	}
	return nil
}

func (c *CLI) invocationError(err error, operation string, tail *tailBuffer) error {
	b := errors.New(err).
		Component("detection").
		Category(errors.CategoryDetection).
		Context("operation", operation)
	if tail != nil && tail.Len() > 0 {
		b = b.Context("output_tail", tail.String())
	}
	return b.Build()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Len()
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

var (
	_ Detector        = (*CLI)(nil)
	_ ConcurrencySafe = (*CLI)(nil)
)
