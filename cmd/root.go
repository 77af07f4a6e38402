package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/d-singer/batdetect2-CLI/cmd/analyze"
	"github.com/d-singer/batdetect2-CLI/cmd/config"
	"github.com/d-singer/batdetect2-CLI/cmd/history"
	"github.com/d-singer/batdetect2-CLI/cmd/status"
	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/runtime"
)

// Exit codes of the process.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitInterrupted = 130
)

// RootCommand creates and returns the root command. Without a subcommand
// it runs the batch analysis; arguments after "--" are forwarded to the
// detection model unchanged.
func RootCommand(ctx *runtime.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "batdetect2-cli [flags] [-- model-args...]",
		Short: "Run BatDetect2 over every monitoring site and merge results per site",
		Long: `Runs the BatDetect2 model over every site folder under the audio root and
appends the detections to one CSV file per site. Interrupted runs resume where
they stopped; files already present in a site's output are never analysed twice.`,
		Version:       ctx.Build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          passthroughArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				ctx.Settings.Detection.ExtraArgs = append(ctx.Settings.Detection.ExtraArgs, args[dash:]...)
			}
			_, err := analyze.Run(cmd.Context(), ctx, cmd.OutOrStdout())
			return err
		},
	}

	setupFlags(rootCmd)
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (default: search ./, ~/.config/batdetect2-cli, /etc/batdetect2-cli)")

	rootCmd.AddCommand(
		status.Command(ctx),
		history.Command(ctx),
		config.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return initialize(ctx, cmd, configFile)
	}

	return rootCmd
}

// passthroughArgs accepts arguments only after "--".
func passthroughArgs(cmd *cobra.Command, args []string) error {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 && len(args) > 0 || dash > 0 {
		return errors.Newf("unexpected argument %q; model options go after --", args[0]).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// initialize loads settings and installs the process logger. It runs
// before every command.
func initialize(ctx *runtime.Context, cmd *cobra.Command, configFile string) error {
	settings, err := conf.Load(conf.LoadOptions{
		ConfigFile:  configFile,
		SearchPaths: ctx.SearchPaths,
		Flags:       cmd.Flags(),
	})
	if err != nil {
		return err
	}
	ctx.Settings = settings

	central, err := logger.NewCentralLogger(&settings.Logging, logger.WithConsoleWriter(ctx.Console()))
	if err != nil {
		return errors.ConfigurationError(err)
	}
	if ctx.Logger != nil {
		_ = ctx.Logger.Close()
	}
	ctx.Logger = central
	logger.SetGlobal(central)

	if settings.ConfigFile != "" {
		central.Module("main").Debug("configuration loaded", logger.String("file", settings.ConfigFile))
	}
	return nil
}

// setupFlags defines flags shared by every command. Defaults mirror the
// configuration defaults; only flags set on the command line override the
// config file and environment.
func setupFlags(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.String("audio-root", conf.DefaultAudioRoot, "Audio root; each immediate subfolder is a site")
	flags.String("output-dir", conf.DefaultOutputDir, "Directory receiving one output file per site")
	flags.Int("batch-size", conf.DefaultBatchSize, "Maximum files per model invocation")
	flags.Int("site-workers", conf.DefaultSiteWorkers, "Sites processed in parallel (concurrency-safe detectors only)")
	flags.Float64("threshold", conf.DefaultThreshold, "Detection threshold between 0 and 1")
	flags.Float64("time-expansion", conf.DefaultTimeExpansionFactor, "Time expansion factor of the recordings")
	flags.String("model-path", "", "Model checkpoint passed to batdetect2 (default: bundled model)")
	flags.String("binary", conf.DefaultBinary, "batdetect2 executable")
	flags.Duration("timeout", 0, "Timeout per model invocation (0 disables)")
	flags.Bool("validate-audio", false, "Check audio headers before invoking the model")
	flags.String("metrics-file", "", "Write Prometheus metrics in textfile format to this path")
	flags.String("ledger", conf.DefaultLedgerPath, "Run history database")
	flags.BoolP("debug", "d", false, "Enable debug output")
}

// ExitCode maps the error returned by the root command to the process
// exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.IsCategory(err, errors.CategoryCancellation), errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitError
	}
}
