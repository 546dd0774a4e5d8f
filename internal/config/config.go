package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/traceview/internal/logging"
)

// Step modes for the compiled driver.
const (
	StepNext = "next"
	StepInto = "step"
)

// Value listing modes for the compiled driver.
const (
	PrintAll    = "all"
	PrintSimple = "simple"
)

// Config is the complete traceview configuration.
type Config struct {
	Tracing TracingConfig `toml:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
	Lua     LuaConfig     `toml:"lua" yaml:"lua" envPrefix:"LUA_"`
	GDB     GDBConfig     `toml:"gdb" yaml:"gdb" envPrefix:"GDB_"`
	Logging LoggingConfig `toml:"logging" yaml:"logging" envPrefix:"LOG_"`
}

// TracingConfig bounds every request regardless of language.
type TracingConfig struct {
	// MaxSteps is the snapshot cap per request.
	MaxSteps int `toml:"max_steps" yaml:"max_steps" env:"MAX_STEPS"`

	// Timeout is the wall-clock limit per request.
	Timeout Duration `toml:"timeout" yaml:"timeout" env:"TIMEOUT"`

	// KillGrace is the delay between SIGTERM and SIGKILL when a debugger has
	// to be stopped.
	KillGrace Duration `toml:"kill_grace" yaml:"kill_grace" env:"KILL_GRACE"`
}

// LuaConfig configures the interpreted driver.
type LuaConfig struct {
	// ChunkName names the user program in frames and error messages.
	ChunkName string `toml:"chunk_name" yaml:"chunk_name" env:"CHUNK_NAME"`

	// CaptureGlobals lists user globals as locals of the outermost frame.
	CaptureGlobals bool `toml:"capture_globals" yaml:"capture_globals" env:"CAPTURE_GLOBALS"`
}

// GDBConfig configures the compiled driver.
type GDBConfig struct {
	Compiler      string   `toml:"compiler" yaml:"compiler" env:"COMPILER"`
	CompilerFlags []string `toml:"compiler_flags" yaml:"compiler_flags" env:"COMPILER_FLAGS"`
	Debugger      string   `toml:"debugger" yaml:"debugger" env:"DEBUGGER"`

	// StepMode is "next" (step over calls) or "step" (step into calls).
	StepMode string `toml:"step_mode" yaml:"step_mode" env:"STEP_MODE"`

	// FullStack records every user frame rather than only the current one.
	FullStack bool `toml:"full_stack" yaml:"full_stack" env:"FULL_STACK"`

	// WorkDir holds the temporary source and binary; empty means the system
	// temporary directory.
	WorkDir string `toml:"work_dir" yaml:"work_dir" env:"WORK_DIR"`

	// PrintValues is "all" (aggregates included) or "simple".
	PrintValues string `toml:"print_values" yaml:"print_values" env:"PRINT_VALUES"`

	// MaxDebuggers caps concurrently running debugger processes. Further
	// compiled requests wait for a slot.
	MaxDebuggers int `toml:"max_debuggers" yaml:"max_debuggers" env:"MAX_DEBUGGERS"`
}

// LoggingConfig configures diagnostics.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level" env:"LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tracing: TracingConfig{
			MaxSteps:  1000,
			Timeout:   Duration{10 * time.Second},
			KillGrace: Duration{2 * time.Second},
		},
		Lua: LuaConfig{
			ChunkName:      "program",
			CaptureGlobals: true,
		},
		GDB: GDBConfig{
			Compiler:      "g++",
			CompilerFlags: []string{},
			Debugger:      "gdb",
			StepMode:      StepNext,
			FullStack:     true,
			PrintValues:   PrintAll,
			MaxDebuggers:  4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Tracing.MaxSteps <= 0 {
		return &ValidationError{"tracing.max_steps", fmt.Sprintf("must be positive, got %d", c.Tracing.MaxSteps)}
	}
	if c.Tracing.Timeout.Duration <= 0 {
		return &ValidationError{"tracing.timeout", fmt.Sprintf("must be positive, got %s", c.Tracing.Timeout)}
	}
	if c.Tracing.KillGrace.Duration < 0 {
		return &ValidationError{"tracing.kill_grace", fmt.Sprintf("must not be negative, got %s", c.Tracing.KillGrace)}
	}
	if strings.TrimSpace(c.Lua.ChunkName) == "" {
		return &ValidationError{"lua.chunk_name", "must not be empty"}
	}
	if strings.ContainsAny(c.Lua.ChunkName, ":\n") {
		return &ValidationError{"lua.chunk_name", "must not contain ':' or newlines"}
	}
	if c.GDB.Compiler == "" {
		return &ValidationError{"gdb.compiler", "must not be empty"}
	}
	if c.GDB.Debugger == "" {
		return &ValidationError{"gdb.debugger", "must not be empty"}
	}
	switch c.GDB.StepMode {
	case StepNext, StepInto:
	default:
		return &ValidationError{"gdb.step_mode", fmt.Sprintf("must be %q or %q, got %q", StepNext, StepInto, c.GDB.StepMode)}
	}
	switch c.GDB.PrintValues {
	case PrintAll, PrintSimple:
	default:
		return &ValidationError{"gdb.print_values", fmt.Sprintf("must be %q or %q, got %q", PrintAll, PrintSimple, c.GDB.PrintValues)}
	}
	if c.GDB.MaxDebuggers < 1 {
		return &ValidationError{"gdb.max_debuggers", fmt.Sprintf("must be at least 1, got %d", c.GDB.MaxDebuggers)}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return &ValidationError{"logging.level", err.Error()}
	}
	return nil
}

// Duration is a time.Duration that reads and writes as text ("10s") in every
// configuration format.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
