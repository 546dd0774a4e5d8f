package luatrace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/traceview/internal/governor"
	"github.com/dshills/traceview/internal/trace"
)

// DefaultChunkName names the program in frames and error messages.
const DefaultChunkName = "program"

// Tracer records Lua programs. It holds configuration only and is safe for
// concurrent use; every Trace call builds its own state.
type Tracer struct {
	chunkName      string
	maxSteps       int
	captureGlobals bool
	watchdog       *governor.Watchdog
	log            logr.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithChunkName sets the name the program is compiled under.
func WithChunkName(name string) Option {
	return func(t *Tracer) {
		if name != "" {
			t.chunkName = name
		}
	}
}

// WithMaxSteps sets the snapshot cap.
func WithMaxSteps(n int) Option {
	return func(t *Tracer) {
		t.maxSteps = n
	}
}

// WithCaptureGlobals controls whether user globals are listed as locals of
// the outermost frame.
func WithCaptureGlobals(capture bool) Option {
	return func(t *Tracer) {
		t.captureGlobals = capture
	}
}

// WithWatchdog bounds every run by the watchdog's timeout.
func WithWatchdog(w *governor.Watchdog) Option {
	return func(t *Tracer) {
		t.watchdog = w
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(t *Tracer) {
		t.log = log
	}
}

// New creates a Tracer.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		chunkName:      DefaultChunkName,
		maxSteps:       governor.DefaultMaxSteps,
		captureGlobals: true,
		watchdog:       governor.NewWatchdog(0, 0),
		log:            logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trace runs source and returns its trace. A program that does not parse
// yields a trace holding only a SyntaxError event.
func (t *Tracer) Trace(ctx context.Context, source string) trace.Trace {
	asm := trace.NewAssembler()
	log := t.log.WithValues("chunk", t.chunkName)

	chunk, err := Instrument(source, t.chunkName)
	if err != nil {
		asm.Fail(syntaxErrorEvent(err, source))
		log.V(1).Info("parse failed", "error", err)
		return asm.Finish()
	}
	proto, err := lua.Compile(chunk, t.chunkName)
	if err != nil {
		asm.Fail(syntaxErrorEvent(err, source))
		log.V(1).Info("compile failed", "error", err)
		return asm.Finish()
	}

	ctx, cancel := t.watchdog.Context(ctx)
	defer cancel()
	runCtx, halt := context.WithCancelCause(ctx)
	defer halt(nil)

	state := NewState()
	defer state.Close()

	obs := &observer{
		state:          state,
		chunk:          t.chunkName,
		budget:         governor.NewBudget(t.maxSteps),
		asm:            asm,
		halt:           halt,
		captureGlobals: t.captureGlobals,
	}
	state.SetProbe(obs.step)
	state.Seal()

	runErr := state.Run(runCtx, proto)
	asm.Output(state.Output())

	switch {
	case runErr == nil:
	case obs.halted && errors.Is(context.Cause(runCtx), ErrStepBudget):
		log.V(1).Info("step budget exhausted", "steps", obs.budget.Used())
	case ctx.Err() != nil:
		asm.Fail(t.interruptedEvent(ctx, asm.LastLine()))
	default:
		asm.Fail(runtimeErrorEvent(runErr, t.chunkName, asm.LastLine()))
	}

	result := asm.Finish()
	log.V(1).Info("trace finished", "snapshots", len(result.Snapshots), "events", len(result.Events))
	return result
}

func (t *Tracer) interruptedEvent(ctx context.Context, line int) trace.Event {
	if governor.Expired(ctx) {
		return trace.ErrorEvent(line, trace.ErrorTimeout,
			fmt.Sprintf("execution exceeded %s", t.watchdog.Timeout()))
	}
	return trace.ErrorEvent(line, trace.ErrorResource, "trace cancelled")
}

// syntaxErrorEvent converts a parse or compile error. A parse error at end of
// input is reported on the last line of source.
func syntaxErrorEvent(err error, source string) trace.Event {
	var perr *parse.Error
	if errors.As(err, &perr) {
		line := perr.Pos.Line
		if line == parse.EOF {
			line = strings.Count(strings.TrimRight(source, "\n"), "\n") + 1
		}
		msg := perr.Message
		if perr.Token != "" {
			msg = fmt.Sprintf("%s near '%s'", perr.Message, perr.Token)
		}
		return trace.ErrorEvent(line, trace.ErrorSyntax, msg)
	}
	var cerr *lua.CompileError
	if errors.As(err, &cerr) {
		return trace.ErrorEvent(cerr.Line, trace.ErrorSyntax, cerr.Message)
	}
	return trace.ErrorEvent(0, trace.ErrorSyntax, strings.TrimSpace(err.Error()))
}

// runtimeErrorEvent converts an error raised by the program. gopher-lua
// prefixes messages with "chunk:line: "; the prefix gives the line and is
// removed from the message. Errors without it are placed on fallback.
func runtimeErrorEvent(err error, chunk string, fallback int) trace.Event {
	var (
		msg   string
		errTy = trace.ErrorRuntime
	)
	var aerr *lua.ApiError
	if errors.As(err, &aerr) {
		msg = aerr.Object.String()
		if aerr.Type == lua.ApiErrorPanic {
			errTy = trace.ErrorResource
		}
	} else {
		msg = err.Error()
		errTy = trace.ErrorResource
	}

	line, rest, ok := splitPosition(msg, chunk)
	if !ok {
		return trace.ErrorEvent(fallback, errTy, msg)
	}
	return trace.ErrorEvent(line, errTy, rest)
}

func splitPosition(msg, chunk string) (int, string, bool) {
	rest, ok := strings.CutPrefix(msg, chunk+":")
	if !ok {
		return 0, msg, false
	}
	digits, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, msg, false
	}
	line, err := strconv.Atoi(digits)
	if err != nil || line <= 0 {
		return 0, msg, false
	}
	return line, strings.TrimSpace(rest), true
}
