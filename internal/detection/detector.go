// Package detection defines the boundary to the bat call detection model and
// provides the adapter that drives the batdetect2 command-line tool.
package detection

import (
	"context"
	"time"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// Defaults for Config.
const (
	DefaultThreshold           = 0.1
	DefaultTimeExpansionFactor = 1.0
	DefaultBinary              = "batdetect2"
)

// Detection is one call event reported by the model.
type Detection struct {
	Class      string
	StartTime  float64
	EndTime    float64
	LowFreq    float64
	HighFreq   float64
	ClassProb  float64
	DetProb    float64
	Individual string
	Event      string
}

// FileResult is the outcome for one input file. Err is non-nil when the file
// failed; Detections may be empty for a file that succeeded without calls.
type FileResult struct {
	File       discovery.AudioFile
	Detections []Detection
	Err        error
}

// OK reports whether the file was processed successfully.
func (r FileResult) OK() bool {
	return r.Err == nil
}

// Config carries model parameters for one invocation.
type Config struct {
	Threshold           float64
	TimeExpansionFactor float64
	ModelPath           string
	Binary              string
	// ExtraArgs are forwarded to the model unchanged.
	ExtraArgs []string
	// Timeout bounds one batch invocation; zero disables it.
	Timeout time.Duration
	// ValidateAudio enables header checks before files reach the model.
	ValidateAudio bool
}

// DefaultConfig returns the stock model parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:           DefaultThreshold,
		TimeExpansionFactor: DefaultTimeExpansionFactor,
		Binary:              DefaultBinary,
		ValidateAudio:       true,
	}
}

// Detector runs the model over a batch of files. It returns exactly one
// FileResult per input file, in input order. A non-nil error means the
// invocation as a whole failed and no per-file result can be trusted.
type Detector interface {
	Detect(ctx context.Context, files []discovery.AudioFile, cfg Config) ([]FileResult, error)
}

// ConcurrencySafe is implemented by detectors that may be called from
// several goroutines at once.
type ConcurrencySafe interface {
	ConcurrencySafe() bool
}

// IsConcurrencySafe reports whether d declares itself safe for concurrent use.
func IsConcurrencySafe(d Detector) bool {
	cs, ok := d.(ConcurrencySafe)
	return ok && cs.ConcurrencySafe()
}

// FailAll builds a failed result for every file, wrapping err as a
// detection failure.
func FailAll(files []discovery.AudioFile, err error) []FileResult {
	results := make([]FileResult, len(files))
	for i, f := range files {
		results[i] = FileResult{File: f, Err: fileFailure(err, f)}
	}
	return results
}

func fileFailure(err error, f discovery.AudioFile) error {
	if errors.IsCategory(err, errors.CategoryDetection) {
		return err
	}
	return errors.New(err).
		Component("detection").
		Category(errors.CategoryDetection).
		Context("file", f.Key).
		FileContext(f.Path, f.Size).
		Build()
}
