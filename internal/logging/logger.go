// Package logging builds the structured logger used across traceview.
//
// Components receive a logr.Logger and log key/value pairs. The sink is zap
// with a human readable console encoder on stderr; the minimum level is held
// in an atomic level so the CLI can raise or lower verbosity after the logger
// was handed out.
package logging

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
)

// Logger is a logr.Logger with control over its level and buffered output.
type Logger struct {
	logr.Logger
	level zap.AtomicLevel
	flush func()
}

// Option configures New.
type Option func(*options)

type options struct {
	out   io.Writer
	level zapcore.Level
}

// WithOutput directs log output to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithLevel sets the initial minimum level.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// New creates a logger named name. The default level is info.
func New(name string, opts ...Option) *Logger {
	o := options{out: os.Stderr, level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zap.NewAtomicLevelAt(o.level)
	var sink zapcore.WriteSyncer
	if f, ok := o.out.(*os.File); ok {
		sink = zapcore.Lock(f)
	} else {
		sink = zapcore.AddSync(o.out)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, level)
	zapLogger := zap.New(core)

	return &Logger{
		Logger: zapr.NewLogger(zapLogger).WithName(name),
		level:  level,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Flush writes any buffered entries.
func (l *Logger) Flush() {
	l.flush()
}

// AddLevelFlag registers -v/--verbosity on fs.
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	fs.VarP(NewLevelFlagValue(l.SetLevel), verbosityFlagName, verbosityFlagShortName,
		"Logging verbosity (debug, info, warn, error, or a positive integer for increasing debug detail)")
}
