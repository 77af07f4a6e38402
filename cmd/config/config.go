package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/runtime"
)

// Command creates the config command, which prints the effective
// configuration after defaults, file, environment and flags are merged.
func Command(ctx *runtime.Context) *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Prints the configuration the analysis would run with. With --write the same
document is saved to a file, which can then be passed with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if writePath != "" {
				if err := conf.SaveYAMLConfig(writePath, ctx.Settings); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", writePath)
				return nil
			}

			data, err := ctx.Settings.MarshalYAMLDocument()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&writePath, "write", "w", "", "Save the configuration to this file instead of printing it")

	return cmd
}
