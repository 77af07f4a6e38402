// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// Defaults shared with the command-line flags.
const (
	DefaultAudioRoot           = "./01_AUDIO_DATA"
	DefaultOutputDir           = "./02_BATDETECT2"
	DefaultBatchSize           = 100
	DefaultSiteWorkers         = 1
	DefaultThreshold           = 0.1
	DefaultTimeExpansionFactor = 1.0
	DefaultBinary              = "batdetect2"
	DefaultLedgerPath          = "batdetect2-cli.db"
)

// setDefaultConfig registers default values for every settings key.
// Every key needs a default for environment overrides to apply.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("input.audio_root", DefaultAudioRoot)
	v.SetDefault("input.extensions", []string{".wav"})

	v.SetDefault("output.dir", DefaultOutputDir)

	v.SetDefault("batch.size", DefaultBatchSize)
	v.SetDefault("batch.site_workers", DefaultSiteWorkers)

	v.SetDefault("detection.binary", DefaultBinary)
	v.SetDefault("detection.model_path", "")
	v.SetDefault("detection.threshold", DefaultThreshold)
	v.SetDefault("detection.time_expansion_factor", DefaultTimeExpansionFactor)
	v.SetDefault("detection.extra_args", []string{})
	v.SetDefault("detection.timeout", "0s")
	v.SetDefault("detection.validate_audio", false)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", DefaultLedgerPath)

	v.SetDefault("metrics.file", "")

	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.on_failure_only", false)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("disk.min_free_mb", 100)
}
