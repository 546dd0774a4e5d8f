package gdb

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/go-logr/logr"

	"github.com/dshills/traceview/internal/mi"
)

// maxStaleBursts bounds how many prompt-only bursts Command skips while
// waiting for its result record.
const maxStaleBursts = 4

// Session is the MI conversation with one gdb process. It is owned by the
// goroutine running the request.
type Session struct {
	transport Transport
	machine   *Machine
	log       logr.Logger

	output   strings.Builder
	pending  []string
	redirect string

	// early holds a *stopped record that arrived in a command's reply burst.
	early *mi.Stop
}

// NewSession creates a session over t in StateLaunching.
func NewSession(t Transport, log logr.Logger) *Session {
	s := &Session{
		transport: t,
		machine:   NewMachine(),
		log:       log,
	}
	s.machine.OnChange = func(old, new State) {
		log.V(2).Info("session state changed", "from", old.String(), "to", new.String())
	}
	return s
}

// State returns the session's protocol state.
func (s *Session) State() State {
	return s.machine.State()
}

// RedirectOutput makes the inferior write its stdout and stderr to path
// instead of sharing gdb's pipe. It must be called before Handshake and has
// no effect on windows.
func (s *Session) RedirectOutput(path string) {
	s.redirect = path
}

// Output returns the program output seen so far: the redirect file's
// contents followed by anything gdb relayed on its own channel.
func (s *Session) Output() string {
	if s.redirect == "" {
		return s.output.String()
	}
	f, err := os.Open(s.redirect)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.V(1).Info("reading program output failed", "path", s.redirect, "error", err.Error())
		}
		return s.output.String()
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxLineLength))
	if err != nil {
		s.log.V(1).Info("reading program output failed", "path", s.redirect, "error", err.Error())
	}
	return string(data) + s.output.String()
}

// Fail moves the session to StateFailed.
func (s *Session) Fail() {
	if !s.machine.State().IsTerminal() {
		_ = s.machine.To(StateFailed)
	}
}

// next returns the next record. Program output glued in front of a record is
// split off into the output buffer.
func (s *Session) next() (*mi.Record, error) {
	var line string
	if len(s.pending) > 0 {
		line, s.pending = s.pending[0], s.pending[1:]
	} else {
		var err error
		if line, err = s.transport.Receive(); err != nil {
			return nil, err
		}
	}

	if mi.Classify(line) == mi.KindTarget {
		if out, rest, ok := mi.SplitGlued(line); ok {
			s.output.WriteString(out)
			s.pending = append([]string{rest}, s.pending...)
			return s.next()
		}
	}

	rec := mi.Parse(line)
	if rec.Err != nil {
		s.log.V(1).Info("malformed mi record", "line", line, "error", rec.Err.Error())
	}
	return rec, nil
}

// burst reads records up to the next prompt. Program output is collected and
// not returned.
func (s *Session) burst() ([]*mi.Record, error) {
	var recs []*mi.Record
	for {
		rec, err := s.next()
		if err != nil {
			return recs, err
		}
		switch {
		case rec.IsPrompt():
			return recs, nil
		case rec.Kind.IsOutput():
			s.output.WriteString(rec.Output())
		default:
			recs = append(recs, rec)
		}
	}
}

// Command sends cmd and reads its reply. The result record is returned; a
// ^error reply is returned as a *CommandError.
func (s *Session) Command(cmd string) (*mi.Record, error) {
	s.log.V(2).Info("mi command", "command", cmd)
	if err := s.transport.Send(cmd); err != nil {
		return nil, err
	}

	for range maxStaleBursts {
		recs, err := s.burst()
		if err != nil {
			return nil, err
		}
		var result *mi.Record
		for _, rec := range recs {
			if stop, ok := rec.Stop(); ok && s.early == nil {
				s.early = &stop
			}
			if rec.Kind == mi.KindResult && result == nil {
				result = rec
			}
		}
		if result == nil {
			continue
		}
		if result.IsError() {
			return result, &CommandError{Command: cmd, Message: result.ErrorMessage()}
		}
		return result, nil
	}
	return nil, &CommandError{Command: cmd, Message: "no result record"}
}

// Handshake reads gdb's startup output, arms a breakpoint on main and starts
// the program. The caller then waits for the first stop with AwaitStop.
func (s *Session) Handshake() error {
	if _, err := s.burst(); err != nil {
		return err
	}

	setup := []string{"-gdb-set confirm off"}
	if runtime.GOOS != "windows" {
		setup = append(setup, s.argumentsCommand())
	}
	for _, cmd := range setup {
		if _, err := s.Command(cmd); err != nil {
			return err
		}
	}

	if _, err := s.Command("-break-insert main"); err != nil {
		return err
	}
	if err := s.machine.To(StateBreakpointArmed); err != nil {
		return err
	}

	if _, err := s.Command("-exec-run"); err != nil {
		return err
	}
	return s.machine.To(StateRunning)
}

// argumentsCommand detaches the inferior's stdin and, with a redirect set,
// points its stdout and stderr at the redirect file. gdb hands the arguments
// to a shell.
func (s *Session) argumentsCommand() string {
	cmd := "-exec-arguments < /dev/null"
	if s.redirect != "" {
		cmd += " > " + shellQuote(s.redirect) + " 2>&1"
	}
	return cmd
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// AwaitStop blocks until the inferior stops or exits.
func (s *Session) AwaitStop() (mi.Stop, error) {
	if s.early != nil {
		stop := *s.early
		s.early = nil
		return s.arrive(stop)
	}
	for {
		recs, err := s.burst()
		if err != nil {
			return mi.Stop{}, err
		}
		for _, rec := range recs {
			if stop, ok := rec.Stop(); ok {
				return s.arrive(stop)
			}
		}
	}
}

func (s *Session) arrive(stop mi.Stop) (mi.Stop, error) {
	next := StateStopped
	if stop.Exited() {
		next = StateExited
	}
	if err := s.machine.To(next); err != nil {
		return stop, err
	}
	return stop, nil
}

// Resume continues a stopped inferior with an exec command such as
// -exec-next. The session is unchanged if gdb rejects the command.
func (s *Session) Resume(cmd string) error {
	if cur := s.machine.State(); cur != StateStopped {
		return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, cmd, cur)
	}
	if _, err := s.Command(cmd); err != nil {
		return err
	}
	return s.machine.To(StateStepping)
}

// Frames lists the call stack of the stopped inferior, innermost first.
func (s *Session) Frames() ([]mi.FrameInfo, error) {
	if err := s.requireStopped("-stack-list-frames"); err != nil {
		return nil, err
	}
	rec, err := s.Command("-stack-list-frames")
	if err != nil {
		return nil, err
	}
	return rec.Frames(), nil
}

// Variables lists the arguments and locals of a frame. A negative level means
// the selected frame. values is "all" or "simple".
func (s *Session) Variables(thread, level int, values string) ([]mi.Variable, error) {
	cmd := "-stack-list-variables"
	if level >= 0 {
		cmd = fmt.Sprintf("%s --thread %d --frame %d", cmd, thread, level)
	}
	cmd = fmt.Sprintf("%s --%s-values", cmd, values)

	if err := s.requireStopped(cmd); err != nil {
		return nil, err
	}
	rec, err := s.Command(cmd)
	if err != nil {
		return nil, err
	}
	return rec.Variables(), nil
}

func (s *Session) requireStopped(cmd string) error {
	if cur := s.machine.State(); cur != StateStopped {
		return fmt.Errorf("%w: %s while %s", ErrIllegalTransition, cmd, cur)
	}
	return nil
}

// Exit asks gdb to quit. gdb does not reply.
func (s *Session) Exit() error {
	return s.transport.Send("-gdb-exit")
}
