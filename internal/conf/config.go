// config.go: settings struct and loading for batdetect2-cli.
package conf

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g.
// BATDETECT_BATCH_SIZE=50.
const EnvPrefix = "BATDETECT"

// InputSettings locates the audio to analyse.
type InputSettings struct {
	AudioRoot  string   `yaml:"audio_root" mapstructure:"audio_root"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions"` // matched case-insensitively
}

// OutputSettings locates the per-site result files.
type OutputSettings struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// BatchSettings controls how work is split.
type BatchSettings struct {
	Size        int `yaml:"size" mapstructure:"size"`                 // max files per model invocation
	SiteWorkers int `yaml:"site_workers" mapstructure:"site_workers"` // parallel sites, concurrency-safe detectors only
}

// DetectionSettings are the model parameters.
type DetectionSettings struct {
	Binary              string        `yaml:"binary" mapstructure:"binary"`
	ModelPath           string        `yaml:"model_path" mapstructure:"model_path"`
	Threshold           float64       `yaml:"threshold" mapstructure:"threshold"`
	TimeExpansionFactor float64       `yaml:"time_expansion_factor" mapstructure:"time_expansion_factor"`
	ExtraArgs           []string      `yaml:"extra_args" mapstructure:"extra_args"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"` // 0 disables
	ValidateAudio       bool          `yaml:"validate_audio" mapstructure:"validate_audio"`
}

// LedgerSettings configures the sqlite run history.
type LedgerSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// MetricsSettings configures the Prometheus textfile export.
type MetricsSettings struct {
	File string `yaml:"file" mapstructure:"file"`
}

// NotificationSettings configures run summary notifications.
type NotificationSettings struct {
	URLs          []string `yaml:"urls" mapstructure:"urls"` // shoutrrr service urls
	OnFailureOnly bool     `yaml:"on_failure_only" mapstructure:"on_failure_only"`
}

// SentrySettings configures opt-in error reporting.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// DiskSettings configures the output free-space preflight.
type DiskSettings struct {
	MinFreeMB uint64 `yaml:"min_free_mb" mapstructure:"min_free_mb"` // 0 disables the check
}

// Settings is the complete configuration of one run.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Input        InputSettings        `yaml:"input" mapstructure:"input"`
	Output       OutputSettings       `yaml:"output" mapstructure:"output"`
	Batch        BatchSettings        `yaml:"batch" mapstructure:"batch"`
	Detection    DetectionSettings    `yaml:"detection" mapstructure:"detection"`
	Logging      logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Ledger       LedgerSettings       `yaml:"ledger" mapstructure:"ledger"`
	Metrics      MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Notification NotificationSettings `yaml:"notification" mapstructure:"notification"`
	Sentry       SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Disk         DiskSettings         `yaml:"disk" mapstructure:"disk"`

	// ConfigFile is the file the settings were read from, empty when
	// only defaults, flags and environment were used. Runtime value.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// LoadOptions selects the sources Load merges over the defaults.
type LoadOptions struct {
	ConfigFile  string         // explicit file; must exist when set
	SearchPaths []string       // searched for config.yaml when ConfigFile is empty
	Flags       *pflag.FlagSet // changed flags override file and environment
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"audio-root":     "input.audio_root",
	"output-dir":     "output.dir",
	"batch-size":     "batch.size",
	"site-workers":   "batch.site_workers",
	"threshold":      "detection.threshold",
	"time-expansion": "detection.time_expansion_factor",
	"model-path":     "detection.model_path",
	"binary":         "detection.binary",
	"timeout":        "detection.timeout",
	"validate-audio": "detection.validate_audio",
	"metrics-file":   "metrics.file",
	"ledger":         "ledger.path",
	"debug":          "debug",
}

// Load reads defaults, the config file, environment variables and flags,
// in increasing precedence, into a fresh Settings. Each call uses its own
// viper instance; no package state is kept.
func Load(opts LoadOptions) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, opts.Flags); err != nil {
		return nil, err
	}

	configFile, err := readConfig(v, opts)
	if err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-settings").
			Context("config_file", configFile).
			Build()
	}
	settings.ConfigFile = configFile

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// bindFlags binds every known flag present in fs. Only flags the user
// changed take precedence; unchanged flags leave file and environment
// values alone.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("flag", name).
				Build()
		}
	}
	return nil
}

// readConfig reads the explicit config file or the first config.yaml
// found on the search paths. A missing file on the search paths is not
// an error; a missing explicit file is.
func readConfig(v *viper.Viper, opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return "", errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("operation", "read-config").
				Context("config_file", opts.ConfigFile).
				Build()
		}
		return v.ConfigFileUsed(), nil
	}

	paths := opts.SearchPaths
	if paths == nil {
		paths = DefaultConfigPaths()
	}
	if len(paths) == 0 {
		return "", nil
	}

	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults",
				logger.String("search_paths", strings.Join(paths, string(os.PathListSeparator))))
			return "", nil
		}
		return "", errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}

	GetLogger().Debug("loaded config file", logger.String("path", v.ConfigFileUsed()))
	return v.ConfigFileUsed(), nil
}

// DefaultConfigPaths returns the directories searched for config.yaml:
// the working directory, the user config directory and, outside
// Windows, /etc/batdetect2-cli.
func DefaultConfigPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "windows" {
			paths = append(paths, filepath.Join(home, "AppData", "Roaming", "batdetect2-cli"))
		} else {
			paths = append(paths, filepath.Join(home, ".config", "batdetect2-cli"))
		}
	}

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/batdetect2-cli")
	}

	return paths
}

// MarshalYAMLDocument renders the settings as a YAML document.
func (s *Settings) MarshalYAMLDocument() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal-settings").
			Build()
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath. The file is written to a
// temporary sibling first and renamed into place.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := settings.MarshalYAMLDocument()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create-config-dir").
			Context("path", dir).
			Build()
	}

	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create-temp-config").
			Build()
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write-temp-config").
			Build()
	}
	if err := tempFile.Close(); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "close-temp-config").
			Build()
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "rename-config").
			Context("path", configPath).
			Build()
	}

	return nil
}
