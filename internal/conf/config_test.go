package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// noSearch keeps tests independent of config files on the host.
var noSearch = []string{}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(LoadOptions{SearchPaths: noSearch})
	require.NoError(t, err)

	assert.Equal(t, DefaultAudioRoot, settings.Input.AudioRoot)
	assert.Equal(t, DefaultOutputDir, settings.Output.Dir)
	assert.Equal(t, []string{".wav"}, settings.Input.Extensions)
	assert.Equal(t, 100, settings.Batch.Size)
	assert.Equal(t, 1, settings.Batch.SiteWorkers)
	assert.InDelta(t, 0.1, settings.Detection.Threshold, 1e-9)
	assert.InDelta(t, 1.0, settings.Detection.TimeExpansionFactor, 1e-9)
	assert.Equal(t, "batdetect2", settings.Detection.Binary)
	assert.Zero(t, settings.Detection.Timeout)
	assert.Empty(t, settings.ConfigFile)

	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)
	require.NotNil(t, settings.Logging.FileOutput)
	assert.False(t, settings.Logging.FileOutput.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
input:
  audio_root: /data/audio
  extensions: [".wav", ".flac"]
batch:
  size: 25
detection:
  threshold: 0.3
  timeout: 90s
  extra_args: ["--workers", "2"]
notification:
  urls: ["generic://example.invalid/hook"]
`)

	settings, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, path, settings.ConfigFile)
	assert.Equal(t, "/data/audio", settings.Input.AudioRoot)
	assert.Equal(t, []string{".wav", ".flac"}, settings.Input.Extensions)
	assert.Equal(t, 25, settings.Batch.Size)
	assert.InDelta(t, 0.3, settings.Detection.Threshold, 1e-9)
	assert.Equal(t, 90*time.Second, settings.Detection.Timeout)
	assert.Equal(t, []string{"--workers", "2"}, settings.Detection.ExtraArgs)
	assert.Len(t, settings.Notification.URLs, 1)
	assert.Equal(t, DefaultOutputDir, settings.Output.Dir, "unset keys keep defaults")
}

func TestLoadMissingExplicitConfig(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadSearchPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("batch:\n  size: 7\n"), 0o644))

	settings, err := Load(LoadOptions{SearchPaths: []string{filepath.Join(dir, "missing"), dir}})
	require.NoError(t, err)
	assert.Equal(t, 7, settings.Batch.Size)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), settings.ConfigFile)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "batch:\n  size: 10\n  site_workers: 2\ndetection:\n  threshold: 0.2\n")
	t.Setenv("BATDETECT_BATCH_SIZE", "20")
	t.Setenv("BATDETECT_DETECTION_THRESHOLD", "0.4")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("batch-size", DefaultBatchSize, "")
	fs.Float64("threshold", DefaultThreshold, "")
	fs.Int("site-workers", DefaultSiteWorkers, "")
	require.NoError(t, fs.Parse([]string{"--threshold", "0.5"}))

	settings, err := Load(LoadOptions{ConfigFile: path, Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, 20, settings.Batch.Size, "environment beats file")
	assert.InDelta(t, 0.5, settings.Detection.Threshold, 1e-9, "changed flag beats environment")
	assert.Equal(t, 2, settings.Batch.SiteWorkers, "unchanged flag leaves file value")
}

func TestLoadDebugRaisesLogLevel(t *testing.T) {
	t.Setenv("BATDETECT_DEBUG", "true")

	settings, err := Load(LoadOptions{SearchPaths: noSearch})
	require.NoError(t, err)
	assert.True(t, settings.Debug)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.Equal(t, "debug", settings.Logging.Console.Level)
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			Input:     InputSettings{AudioRoot: "audio", Extensions: []string{".wav"}},
			Output:    OutputSettings{Dir: "out"},
			Batch:     BatchSettings{Size: 1, SiteWorkers: 1},
			Detection: DetectionSettings{Binary: "batdetect2", Threshold: 0.1, TimeExpansionFactor: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"zero batch size", func(s *Settings) { s.Batch.Size = 0 }, "batch size must be at least 1"},
		{"zero site workers", func(s *Settings) { s.Batch.SiteWorkers = 0 }, "site workers"},
		{"threshold above one", func(s *Settings) { s.Detection.Threshold = 1.5 }, "threshold must be between 0 and 1"},
		{"negative threshold", func(s *Settings) { s.Detection.Threshold = -0.1 }, "threshold must be between 0 and 1"},
		{"zero time expansion", func(s *Settings) { s.Detection.TimeExpansionFactor = 0 }, "time expansion factor"},
		{"empty root", func(s *Settings) { s.Input.AudioRoot = " " }, "audio root"},
		{"empty output", func(s *Settings) { s.Output.Dir = "" }, "output directory"},
		{"no extensions", func(s *Settings) { s.Input.Extensions = nil }, "audio extension"},
		{"blank extension", func(s *Settings) { s.Input.Extensions = []string{"."} }, "is empty"},
		{"empty binary", func(s *Settings) { s.Detection.Binary = "" }, "binary"},
		{"negative timeout", func(s *Settings) { s.Detection.Timeout = -time.Second }, "timeout"},
		{"ledger without path", func(s *Settings) { s.Ledger = LedgerSettings{Enabled: true} }, "ledger path"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateSettingsCollectsAll(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(&Settings{})
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.GreaterOrEqual(t, len(ve.Errors), 5)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings, err := Load(LoadOptions{SearchPaths: noSearch})
	require.NoError(t, err)
	settings.Batch.Size = 42
	settings.Detection.ExtraArgs = []string{"--chunk_size", "2"}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, 42, reloaded.Batch.Size)
	assert.Equal(t, []string{"--chunk_size", "2"}, reloaded.Detection.ExtraArgs)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}
