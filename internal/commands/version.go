package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var versionColor = color.New(color.FgYellow, color.Bold)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprint(out, "traceview ")
			versionColor.Fprint(out, Version)
			fmt.Fprintf(out, "\ncommit: %s\nbuilt:  %s\ngo:     %s\n", Commit, Date, runtime.Version())
			return nil
		},
	}
}
