package gdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/traceview/internal/governor"
	"github.com/dshills/traceview/internal/mi"
	"github.com/dshills/traceview/internal/process"
	"github.com/dshills/traceview/internal/trace"
)

// Step modes.
const (
	StepOver = "next"
	StepInto = "step"
)

// Value listing modes.
const (
	PrintAll    = "all"
	PrintSimple = "simple"
)

// Tracer records C++ programs. It holds configuration only and is safe for
// concurrent use; every Trace call has its own files, process and session.
type Tracer struct {
	compiler    Compiler
	debugger    string
	stepMode    string
	fullStack   bool
	printValues string
	workDir     string
	maxSteps    int

	watchdog   *governor.Watchdog
	supervisor *process.Supervisor
	log        logr.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithCompiler sets the compiler executable and extra flags.
func WithCompiler(path string, flags ...string) Option {
	return func(t *Tracer) {
		t.compiler = Compiler{Path: path, Flags: flags}
	}
}

// WithDebugger sets the gdb executable.
func WithDebugger(path string) Option {
	return func(t *Tracer) {
		t.debugger = path
	}
}

// WithStepMode selects StepOver or StepInto.
func WithStepMode(mode string) Option {
	return func(t *Tracer) {
		t.stepMode = mode
	}
}

// WithFullStack records every user frame instead of the current one only.
func WithFullStack(full bool) Option {
	return func(t *Tracer) {
		t.fullStack = full
	}
}

// WithPrintValues selects PrintAll or PrintSimple.
func WithPrintValues(mode string) Option {
	return func(t *Tracer) {
		t.printValues = mode
	}
}

// WithWorkDir sets where the source and binary are written.
func WithWorkDir(dir string) Option {
	return func(t *Tracer) {
		t.workDir = dir
	}
}

// WithMaxSteps sets the step cap.
func WithMaxSteps(n int) Option {
	return func(t *Tracer) {
		t.maxSteps = n
	}
}

// WithWatchdog sets the request deadline and kill grace.
func WithWatchdog(w *governor.Watchdog) Option {
	return func(t *Tracer) {
		t.watchdog = w
	}
}

// WithSupervisor runs debuggers under s, so that they can all be stopped at
// shutdown.
func WithSupervisor(s *process.Supervisor) Option {
	return func(t *Tracer) {
		t.supervisor = s
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
		compiler:    Compiler{Path: "g++"},
		debugger:    "gdb",
		stepMode:    StepOver,
		fullStack:   true,
		printValues: PrintAll,
		maxSteps:    governor.DefaultMaxSteps,
		watchdog:    governor.NewWatchdog(0, 0),
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.supervisor == nil {
		t.supervisor = process.NewSupervisor(process.WithProcessGroups(), process.WithLogger(t.log))
	}
	return t
}

// Trace compiles and steps through source. It never returns an error: every
// failure becomes the trace's final event.
func (t *Tracer) Trace(ctx context.Context, source string) trace.Trace {
	asm := trace.NewAssembler()
	ctx, cancel := t.watchdog.Context(ctx)
	defer cancel()

	arts := governor.NewArtifacts(t.workDir, governor.WithArtifactLogger(t.log))
	defer func() { _ = arts.Cleanup() }()

	base := "traceview_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	src := arts.Path(base + ".cpp")
	bin := arts.Path(base)
	out := arts.Path(base + ".stdout")
	arts.Add(bin+".exe", bin+".out")
	log := t.log.WithValues("artifact", base)

	if err := os.WriteFile(src, []byte(source), 0o600); err != nil {
		asm.Fail(trace.ErrorEvent(0, trace.ErrorResource, fmt.Sprintf("write source: %v", err)))
		return asm.Finish()
	}

	start := time.Now()
	if err := t.compiler.Compile(ctx, src, bin); err != nil {
		log.V(1).Info("compile failed", "error", err.Error())
		asm.Fail(t.failure(ctx, err, 0))
		return asm.Finish()
	}
	log.V(1).Info("compiled", "elapsed", time.Since(start))

	t.debug(ctx, log, src, bin, out, asm)

	result := asm.Finish()
	log.V(1).Info("trace finished", "snapshots", len(result.Snapshots), "events", len(result.Events))
	return result
}

// debug runs bin under gdb and records into asm. The program's own output
// goes to the file out.
func (t *Tracer) debug(ctx context.Context, log logr.Logger, src, bin, out string, asm *trace.Assembler) {
	cmd := exec.Command(t.debugger, "--interpreter=mi2", "-q", "-nx", "--args", bin)
	cmd.Dir = filepath.Dir(bin)
	proc, err := t.supervisor.Start("gdb", cmd)
	if err != nil {
		asm.Fail(trace.ErrorEvent(0, trace.ErrorResource, fmt.Sprintf("start debugger: %v", err)))
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		return drain(proc.Stderr, log)
	})

	stop := func(grace time.Duration) {
		proc.Stop(grace)
		_ = proc.Close()
	}
	release := t.watchdog.Guard(ctx, func(grace time.Duration) {
		log.Info("deadline passed, stopping debugger", "pid", proc.PID())
		stop(grace)
	})

	sess := NewSession(NewStreamTransport(proc.Stdin, proc.Stdout), log)
	sess.RedirectOutput(out)
	t.record(ctx, log, sess, src, asm)

	release()
	_ = sess.Exit()
	stop(t.watchdog.Grace())
	if err := g.Wait(); err != nil && !errors.Is(err, os.ErrClosed) {
		log.V(1).Info("reading debugger stderr failed", "error", err.Error())
	}
}

// record drives a session from handshake to exit, failure or budget
// exhaustion.
func (t *Tracer) record(ctx context.Context, log logr.Logger, sess *Session, src string, asm *trace.Assembler) {
	defer func() { asm.Output(sess.Output()) }()

	fail := func(err error) {
		sess.Fail()
		log.V(1).Info("session failed", "state", sess.State().String(), "error", err.Error())
		asm.Fail(t.failure(ctx, err, asm.LastLine()))
	}

	if err := sess.Handshake(); err != nil {
		fail(err)
		return
	}
	stop, err := sess.AwaitStop()
	if err != nil {
		fail(err)
		return
	}

	budget := governor.NewBudget(t.maxSteps)
	for {
		if stop.Exited() {
			log.V(1).Info("program exited", "reason", stop.Reason, "code", stop.ExitCode)
			return
		}
		if stop.Signalled() {
			line := asm.LastLine()
			if stop.HasLine && sameFile(stop.File, stop.Fullname, src) {
				line = stop.Line
			}
			sess.Fail()
			asm.Fail(trace.ErrorEvent(line, stop.SignalName, stop.SignalMeaning))
			return
		}
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
		if !budget.Take() {
			log.V(1).Info("step budget exhausted", "steps", budget.Used())
			return
		}

		user := sameFile(stop.File, stop.Fullname, src)
		if stop.HasLine && user {
			snap, err := t.snapshot(sess, stop, src)
			if err != nil {
				fail(err)
				return
			}
			_ = asm.Append(snap)
		}

		if err := t.resume(sess, log, user); err != nil {
			fail(err)
			return
		}
		if stop, err = sess.AwaitStop(); err != nil {
			fail(err)
			return
		}
	}
}

// resume steps the inferior. When gdb refuses to step (no line information
// for the current function), the program is continued to its end instead.
func (t *Tracer) resume(sess *Session, log logr.Logger, inUserCode bool) error {
	cmd := "-exec-next"
	if t.stepMode == StepInto {
		cmd = "-exec-step"
		if !inUserCode {
			cmd = "-exec-finish"
		}
	}
	err := sess.Resume(cmd)
	var cerr *CommandError
	if errors.As(err, &cerr) {
		log.V(1).Info("step refused, continuing", "command", cmd, "message", cerr.Message)
		err = sess.Resume("-exec-continue")
	}
	return err
}

// snapshot captures the stopped program. The heap is always empty.
func (t *Tracer) snapshot(sess *Session, stop mi.Stop, src string) (trace.Snapshot, error) {
	snap := trace.Snapshot{Line: stop.Line, Heap: map[int]trace.HeapObject{}}

	if !t.fullStack {
		vars, err := sess.Variables(0, -1, t.printValues)
		if err != nil {
			return snap, err
		}
		snap.Stack = []trace.Frame{{FuncName: stop.Func, Line: stop.Line, Locals: locals(vars)}}
		return snap, nil
	}

	frames, err := sess.Frames()
	if err != nil {
		return snap, err
	}
	thread := stop.ThreadID
	if thread <= 0 {
		thread = 1
	}
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if !sameFile(f.File, f.Fullname, src) {
			continue
		}
		vars, err := sess.Variables(thread, f.Level, t.printValues)
		if err != nil {
			return snap, err
		}
		snap.Stack = append(snap.Stack, trace.Frame{FuncName: f.Func, Line: f.Line, Locals: locals(vars)})
	}
	if top := len(snap.Stack) - 1; top >= 0 {
		snap.Stack[top].Line = stop.Line
	}
	return snap, nil
}

func locals(vars []mi.Variable) map[string]trace.Value {
	out := make(map[string]trace.Value, len(vars))
	for _, v := range vars {
		switch {
		case v.HasValue:
			out[v.Name] = trace.Primitive(v.Value)
		case v.Type != "":
			out[v.Name] = trace.Primitive("<" + v.Type + ">")
		default:
			out[v.Name] = trace.Primitive("<unavailable>")
		}
	}
	return out
}

// sameFile reports whether a frame's file is the request's source.
func sameFile(file, fullname, src string) bool {
	if fullname != "" && filepath.Clean(fullname) == filepath.Clean(src) {
		return true
	}
	return file != "" && filepath.Base(file) == filepath.Base(src)
}

// failure converts an error that ended a request into its event. A passed
// deadline wins over whatever error it caused.
func (t *Tracer) failure(ctx context.Context, err error, line int) trace.Event {
	if ctx.Err() != nil {
		if governor.Expired(ctx) {
			return trace.ErrorEvent(line, trace.ErrorTimeout,
				fmt.Sprintf("execution exceeded %s", t.watchdog.Timeout()))
		}
		return trace.ErrorEvent(line, trace.ErrorResource, "trace cancelled")
	}

	var (
		compErr *CompileError
		cmdErr  *CommandError
	)
	switch {
	case errors.As(err, &compErr):
		return trace.CompilationErrorEvent(compErr.Diagnostics)
	case errors.As(err, &cmdErr), errors.Is(err, ErrIllegalTransition):
		return trace.ErrorEvent(line, trace.ErrorProtocol, err.Error())
	default:
		return trace.ErrorEvent(line, trace.ErrorResource, err.Error())
	}
}

// drain logs the debugger's stderr until it is closed.
func drain(r io.Reader, log logr.Logger) error {
	if r == nil {
		return nil
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.V(1).Info("gdb stderr", "line", sc.Text())
	}
	return sc.Err()
}
