package commands

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Long: `Config prints the configuration traceview would use: the built-in defaults
overlaid with the --config file, TRACEVIEW_* environment variables and the
command line flags. The output is a valid configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.cfg.Encode(cmd.OutOrStdout())
		},
	}
}
