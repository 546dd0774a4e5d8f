// Package commands implements the traceview command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/traceview/internal/config"
	"github.com/dshills/traceview/internal/logging"
	"github.com/dshills/traceview/internal/recorder"
	"github.com/dshills/traceview/internal/trace"
)

// Color modes for --color.
const (
	colorAuto = "auto"
	colorOn   = "on"
	colorOff  = "off"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	format     string
	pretty     bool
	maxSteps   int
	timeout    time.Duration
	color      string
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags globalFlags
	log   *logging.Logger

	cfg    *config.Config
	format trace.Format

	recOnce sync.Once
	rec     *recorder.Recorder
}

// NewRootCmd creates the traceview command tree. Diagnostics are logged to
// logOut.
func NewRootCmd(logOut io.Writer) *cobra.Command {
	a := &app{log: logging.New("traceview", logging.WithOutput(logOut))}

	rootCmd := &cobra.Command{
		Use:   "traceview",
		Short: "Records the step-by-step execution of Lua and C++ programs",
		Long: `traceview runs a program one step at a time and writes a trace of its
state at every step: the executing line, the call stack with each frame's
locals, and the heap objects they refer to.

Lua programs run in an embedded interpreter. C++ programs are compiled with
debug information and stepped through gdb.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.log.Flush()
		},
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "configuration file (.toml or .yaml)")
	pf.StringVar(&a.flags.format, "format", string(trace.FormatJSON), "trace encoding (json|msgpack)")
	pf.BoolVar(&a.flags.pretty, "pretty", false, "indent JSON output")
	pf.IntVar(&a.flags.maxSteps, "max-steps", 0, "maximum snapshots per trace (overrides configuration)")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "wall-clock limit per trace (overrides configuration)")
	pf.StringVar(&a.flags.color, "color", colorAuto, "colorize diagnostics (auto|on|off)")
	a.log.AddLevelFlag(pf)

	rootCmd.AddCommand(
		newTraceCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// setup loads the configuration and applies flag overrides.
func (a *app) setup(cmd *cobra.Command) error {
	if err := applyColor(a.flags.color, cmd.ErrOrStderr()); err != nil {
		return err
	}

	format, err := trace.ParseFormat(a.flags.format)
	if err != nil {
		return err
	}
	a.format = format

	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	pf := cmd.Flags()
	if pf.Changed("max-steps") {
		cfg.Tracing.MaxSteps = a.flags.maxSteps
	}
	if pf.Changed("timeout") {
		cfg.Tracing.Timeout.Duration = a.flags.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if !pf.Changed("verbosity") {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		a.log.SetLevel(level)
	}
	a.log.V(1).Info("configuration loaded", "file", a.flags.configPath,
		"max_steps", cfg.Tracing.MaxSteps, "timeout", cfg.Tracing.Timeout.Duration)
	return nil
}

// recorder returns the invocation's recorder. Running debuggers are stopped
// when ctx ends.
func (a *app) recorder(ctx context.Context) *recorder.Recorder {
	a.recOnce.Do(func() {
		a.rec = recorder.New(a.cfg, recorder.WithLogger(a.log.Logger))
		context.AfterFunc(ctx, func() {
			a.log.V(1).Info("interrupted, stopping debuggers")
			a.rec.Shutdown()
		})
	})
	return a.rec
}

// applyColor sets the global color switch for diagnostics written to w.
func applyColor(mode string, w io.Writer) error {
	switch mode {
	case colorOn:
		color.NoColor = false
	case colorOff:
		color.NoColor = true
	case colorAuto:
		f, ok := w.(*os.File)
		color.NoColor = !ok || !term.IsTerminal(int(f.Fd())) || os.Getenv("NO_COLOR") != ""
	default:
		return fmt.Errorf("invalid --color %q (must be auto, on or off)", mode)
	}
	return nil
}
