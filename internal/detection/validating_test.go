package detection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// recordingDetector returns one detection per file and remembers what it saw.
type recordingDetector struct {
	seen []string
	err  error
	safe bool
}

func (r *recordingDetector) Detect(_ context.Context, files []discovery.AudioFile, _ Config) ([]FileResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]FileResult, len(files))
	for i, f := range files {
		r.seen = append(r.seen, f.Key)
		out[i] = FileResult{File: f, Detections: []Detection{{Class: "Myotis"}}}
	}
	return out, nil
}

func (r *recordingDetector) ConcurrencySafe() bool { return r.safe }

func newTestValidating(next Detector) *Validating {
	v := NewValidating(next)
	v.validate = func(path string) error {
		if strings.Contains(path, "broken") {
			return fmt.Errorf("invalid WAV file format")
		}
		return nil
	}
	return v
}

func TestValidatingFiltersBrokenFiles(t *testing.T) {
	t.Parallel()

	inner := &recordingDetector{}
	files := []discovery.AudioFile{
		{Path: "/s/a.wav", Key: "a.wav"},
		{Path: "/s/broken.wav", Key: "broken.wav"},
		{Path: "/s/c.wav", Key: "c.wav"},
	}

	results, err := newTestValidating(inner).Detect(context.Background(), files, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []string{"a.wav", "c.wav"}, inner.seen)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.True(t, errors.IsCategory(results[1].Err, errors.CategoryDetection))
	assert.Equal(t, "broken.wav", results[1].File.Key)
	assert.True(t, results[2].OK())
	assert.Equal(t, "c.wav", results[2].File.Key)
}

// writeWAV encodes a mono 16-bit recording with n samples.
func writeWAV(t *testing.T, path string, n int) {
	t.Helper()

	f, err := os.Create(path) //nolint:gosec // test path
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 256000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 256000},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func TestValidatingReadsRealHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.wav")
	writeWAV(t, good, 25600)
	silent := filepath.Join(dir, "silent.wav")
	writeWAV(t, silent, 0)
	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not a riff header"), 0o600))
	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	files := []discovery.AudioFile{
		{Path: good, Key: "good.wav"},
		{Path: silent, Key: "silent.wav"},
		{Path: garbage, Key: "garbage.wav"},
		{Path: empty, Key: "empty.wav"},
	}

	inner := &recordingDetector{}
	results, err := NewValidating(inner).Detect(context.Background(), files, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, []string{"good.wav"}, inner.seen)
	assert.True(t, results[0].OK(), "a valid recording reaches the model")
	for _, r := range results[1:] {
		assert.False(t, r.OK(), r.File.Key)
		assert.True(t, errors.IsCategory(r.Err, errors.CategoryDetection), r.File.Key)
	}

	var ee *errors.EnhancedError
	require.True(t, errors.As(results[1].Err, &ee))
	assert.Equal(t, "wav", ee.GetContext()["file_extension"])
	assert.Equal(t, "absolute-path", ee.GetContext()["file_type"])
}

func TestValidatingDisabled(t *testing.T) {
	t.Parallel()

	inner := &recordingDetector{}
	cfg := DefaultConfig()
	cfg.ValidateAudio = false

	files := []discovery.AudioFile{{Path: "/s/broken.wav", Key: "broken.wav"}}
	results, err := newTestValidating(inner).Detect(context.Background(), files, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
}

func TestValidatingAllInvalidSkipsDetector(t *testing.T) {
	t.Parallel()

	inner := &recordingDetector{err: fmt.Errorf("must not be called")}
	files := []discovery.AudioFile{{Path: "/s/broken.wav", Key: "broken.wav"}}

	results, err := newTestValidating(inner).Detect(context.Background(), files, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
}

func TestValidatingPropagatesInvocationFailure(t *testing.T) {
	t.Parallel()

	inner := &recordingDetector{err: fmt.Errorf("model crashed")}
	files := []discovery.AudioFile{{Path: "/s/a.wav", Key: "a.wav"}}

	_, err := newTestValidating(inner).Detect(context.Background(), files, DefaultConfig())
	require.Error(t, err)
}

func TestConcurrencySafeDetection(t *testing.T) {
	t.Parallel()

	assert.True(t, IsConcurrencySafe(NewCLI()))
	assert.False(t, IsConcurrencySafe(NewValidating(&recordingDetector{})))
	assert.True(t, IsConcurrencySafe(NewValidating(&recordingDetector{safe: true})))
}

func TestFailAll(t *testing.T) {
	t.Parallel()

	files := []discovery.AudioFile{{Key: "a.wav"}, {Key: "b.wav"}}
	results := FailAll(files, fmt.Errorf("boom"))
	require.Len(t, results, 2)
	for i, r := range results {
		assert.Equal(t, files[i].Key, r.File.Key)
		assert.False(t, r.OK())
		assert.True(t, errors.IsCategory(r.Err, errors.CategoryDetection))
	}
}
