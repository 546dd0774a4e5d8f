package recorder

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/traceview/internal/config"
	"github.com/dshills/traceview/internal/gdb"
	"github.com/dshills/traceview/internal/governor"
	"github.com/dshills/traceview/internal/luatrace"
	"github.com/dshills/traceview/internal/process"
	"github.com/dshills/traceview/internal/trace"
)

// Tracer is a language driver.
type Tracer interface {
	Trace(ctx context.Context, source string) trace.Trace
}

// Recorder routes requests to the language drivers. It is safe for
// concurrent use.
type Recorder struct {
	interpreted Tracer
	compiled    Tracer

	// debuggers admits compiled requests up to the supervisor's process
	// limit.
	debuggers *semaphore.Weighted

	supervisor *process.Supervisor
	grace      time.Duration
	log        logr.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger handed to both drivers.
func WithLogger(log logr.Logger) Option {
	return func(r *Recorder) {
		r.log = log
	}
}

// WithSupervisor sets the supervisor that owns debugger processes.
func WithSupervisor(s *process.Supervisor) Option {
	return func(r *Recorder) {
		r.supervisor = s
	}
}

// WithInterpreted replaces the interpreted driver.
func WithInterpreted(t Tracer) Option {
	return func(r *Recorder) {
		r.interpreted = t
	}
}

// WithCompiled replaces the compiled driver.
func WithCompiled(t Tracer) Option {
	return func(r *Recorder) {
		r.compiled = t
	}
}

// New creates a Recorder from cfg.
func New(cfg *config.Config, opts ...Option) *Recorder {
	limit := max(cfg.GDB.MaxDebuggers, 1)
	r := &Recorder{
		debuggers: semaphore.NewWeighted(int64(limit)),
		grace:     cfg.Tracing.KillGrace.Duration,
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.supervisor == nil {
		r.supervisor = process.NewSupervisor(
			process.WithProcessGroups(),
			process.WithMaxProcesses(limit),
			process.WithLogger(r.log.WithName("process")),
		)
	}

	watchdog := governor.NewWatchdog(cfg.Tracing.Timeout.Duration, cfg.Tracing.KillGrace.Duration)
	if r.interpreted == nil {
		r.interpreted = luatrace.New(
			luatrace.WithChunkName(cfg.Lua.ChunkName),
			luatrace.WithCaptureGlobals(cfg.Lua.CaptureGlobals),
			luatrace.WithMaxSteps(cfg.Tracing.MaxSteps),
			luatrace.WithWatchdog(watchdog),
			luatrace.WithLogger(r.log.WithName("lua")),
		)
	}
	if r.compiled == nil {
		r.compiled = gdb.New(
			gdb.WithCompiler(cfg.GDB.Compiler, cfg.GDB.CompilerFlags...),
			gdb.WithDebugger(cfg.GDB.Debugger),
			gdb.WithStepMode(cfg.GDB.StepMode),
			gdb.WithFullStack(cfg.GDB.FullStack),
			gdb.WithPrintValues(cfg.GDB.PrintValues),
			gdb.WithWorkDir(cfg.GDB.WorkDir),
			gdb.WithMaxSteps(cfg.Tracing.MaxSteps),
			gdb.WithWatchdog(watchdog),
			gdb.WithSupervisor(r.supervisor),
			gdb.WithLogger(r.log.WithName("gdb")),
		)
	}
	return r
}

// TraceInterpreted traces a Lua program.
func (r *Recorder) TraceInterpreted(ctx context.Context, code string) trace.Trace {
	return r.run(ctx, LangLua, r.interpreted, code)
}

// TraceCompiled traces a C++ program. At most gdb.max_debuggers requests run
// at once; the rest wait for a slot or for ctx to end.
func (r *Recorder) TraceCompiled(ctx context.Context, code string) trace.Trace {
	if err := r.debuggers.Acquire(ctx, 1); err != nil {
		asm := trace.NewAssembler()
		asm.Fail(trace.ErrorEvent(0, trace.ErrorResource, "trace cancelled while waiting for a debugger"))
		return asm.Finish()
	}
	defer r.debuggers.Release(1)
	return r.run(ctx, LangCPP, r.compiled, code)
}

// Trace traces code written in lang, which may be any name accepted by
// ParseLanguage.
func (r *Recorder) Trace(ctx context.Context, lang, code string) (trace.Trace, error) {
	canonical, err := ParseLanguage(lang)
	if err != nil {
		return trace.Trace{}, err
	}
	if canonical == LangLua {
		return r.TraceInterpreted(ctx, code), nil
	}
	return r.TraceCompiled(ctx, code), nil
}

// Shutdown stops every debugger still running. Requests in flight end with
// an error event.
func (r *Recorder) Shutdown() {
	r.supervisor.Shutdown(r.grace)
}

func (r *Recorder) run(ctx context.Context, lang string, t Tracer, code string) (result trace.Trace) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error(fmt.Errorf("%v", p), "tracer panicked", "language", lang, "stack", string(debug.Stack()))
			asm := trace.NewAssembler()
			asm.Fail(trace.ErrorEvent(0, trace.ErrorResource, fmt.Sprintf("internal error: %v", p)))
			result = asm.Finish()
		}
	}()

	result = t.Trace(ctx, code)
	r.log.V(1).Info("request traced", "language", lang,
		"snapshots", len(result.Snapshots), "elapsed", time.Since(start))
	return result
}
