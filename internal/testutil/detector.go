package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/d-singer/batdetect2-CLI/internal/detection"
	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// FakeDetector is a scripted detection.Detector. Files are matched by key;
// unknown files succeed with no detections.
type FakeDetector struct {
	// Detections lists the detections returned per file key.
	Detections map[string][]detection.Detection
	// Failures makes the named files fail individually.
	Failures map[string]error
	// Hook runs before each invocation. A non-nil error fails the whole
	// invocation. call counts from zero.
	Hook func(ctx context.Context, call int, files []discovery.AudioFile) error
	// Safe is reported through ConcurrencySafe.
	Safe bool

	mu      sync.Mutex
	calls   [][]string
	configs []detection.Config
}

// NewFakeDetector returns a detector producing count calls for each key.
func NewFakeDetector(counts map[string]int) *FakeDetector {
	d := &FakeDetector{
		Detections: make(map[string][]detection.Detection, len(counts)),
		Failures:   map[string]error{},
	}
	for key, n := range counts {
		d.Detections[key] = MakeDetections(n)
	}
	return d
}

// MakeDetections builds n distinct detections.
func MakeDetections(n int) []detection.Detection {
	out := make([]detection.Detection, n)
	for i := range out {
		start := float64(i) * 0.5
		out[i] = detection.Detection{
			Class:      "Pipistrellus pipistrellus",
			StartTime:  start,
			EndTime:    start + 0.0125,
			LowFreq:    42000,
			HighFreq:   61000,
			ClassProb:  0.8,
			DetProb:    0.9,
			Individual: "-1",
			Event:      "Echolocation",
		}
	}
	return out
}

// ConcurrencySafe implements detection.ConcurrencySafe.
func (d *FakeDetector) ConcurrencySafe() bool {
	return d.Safe
}

// Detect implements detection.Detector.
func (d *FakeDetector) Detect(ctx context.Context, files []discovery.AudioFile, cfg detection.Config) ([]detection.FileResult, error) {
	keys := make([]string, len(files))
	for i, f := range files {
		keys[i] = f.Key
	}

	d.mu.Lock()
	call := len(d.calls)
	d.calls = append(d.calls, keys)
	d.configs = append(d.configs, cfg)
	hook := d.Hook
	d.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, call, files); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryCancellation).
			Build()
	}

	results := make([]detection.FileResult, len(files))
	for i, f := range files {
		results[i].File = f
		if ferr, ok := d.Failures[f.Key]; ok {
			results[i].Err = errors.New(ferr).
				Category(errors.CategoryDetection).
				Context("file", f.Key).
				Build()
			continue
		}
		results[i].Detections = slices.Clone(d.Detections[f.Key])
	}
	return results, nil
}

// Calls returns the file keys of every invocation so far.
func (d *FakeDetector) Calls() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

// Configs returns the model configuration of every invocation so far.
func (d *FakeDetector) Configs() []detection.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.configs)
}

// Processed returns every file key passed to the detector, in call order.
func (d *FakeDetector) Processed() []string {
	var out []string
	for _, c := range d.Calls() {
		out = append(out, c...)
	}
	return out
}

// String summarises the calls for assertion messages.
func (d *FakeDetector) String() string {
	return fmt.Sprintf("FakeDetector%v", d.Calls())
}
