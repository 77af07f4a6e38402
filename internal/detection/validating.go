package detection

import (
	"context"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/myaudio"
)

// Validating checks audio headers before delegating to the wrapped detector.
// Files that fail the check are reported as failed without reaching the model.
type Validating struct {
	next     Detector
	validate func(path string) error
	log      logger.Logger
}

// NewValidating wraps next with audio header checks.
func NewValidating(next Detector) *Validating {
	return &Validating{
		next:     next,
		validate: myaudio.Validate,
		log:      GetLogger(),
	}
}

// ConcurrencySafe mirrors the wrapped detector.
func (v *Validating) ConcurrencySafe() bool {
	return IsConcurrencySafe(v.next)
}

// Detect validates each file when cfg.ValidateAudio is set and forwards the
// valid ones in their original order.
func (v *Validating) Detect(ctx context.Context, files []discovery.AudioFile, cfg Config) ([]FileResult, error) {
	if !cfg.ValidateAudio {
		return v.next.Detect(ctx, files, cfg)
	}

	results := make([]FileResult, len(files))
	valid := make([]discovery.AudioFile, 0, len(files))
	positions := make([]int, 0, len(files))

	for i, f := range files {
		results[i].File = f
		if err := v.validate(f.Path); err != nil {
			v.log.Warn("skipping unreadable recording",
				logger.String("file", f.Key),
				logger.Error(err))
			results[i].Err = errors.New(err).
				Component("detection").
				Category(errors.CategoryDetection).
				Context("operation", "validate_audio").
				Context("file", f.Key).
				FileContext(f.Path, f.Size).
				Build()
			continue
		}
		valid = append(valid, f)
		positions = append(positions, i)
	}

	if len(valid) == 0 {
		return results, nil
	}

	inner, err := v.next.Detect(ctx, valid, cfg)
	if err != nil {
		return nil, err
	}
	if len(inner) != len(valid) {
		return nil, errors.Newf("detector returned %d results for %d files", len(inner), len(valid)).
			Component("detection").
			Category(errors.CategoryDetection).
			Build()
	}

	for j, r := range inner {
		results[positions[j]] = r
	}
	return results, nil
}

var (
	_ Detector        = (*Validating)(nil)
	_ ConcurrencySafe = (*Validating)(nil)
)
