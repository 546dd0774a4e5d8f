package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

// State is the lifecycle state of a child process.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateExited
	// StateKilled means the process was ended by a signal.
	StateKilled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Process is a child process with piped standard streams and exit tracking.
type Process struct {
	ID   string
	Name string
	Cmd  *exec.Cmd

	// Stdin, Stdout and Stderr are set when the supervisor created the pipe.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	Started time.Time

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	group bool

	// reaped runs after the exit status is recorded and before Done is
	// closed.
	reaped func()
}

func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   id,
		Name: name,
		Cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// State returns the current state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// IsRunning reports whether the process has started and not yet exited.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// PID returns the OS process id, or -1 before start.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal delivers sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() || p.Cmd.Process == nil {
		return ErrNotRunning
	}
	var err error
	if ssig, ok := sig.(syscall.Signal); ok && p.group {
		err = signalGroup(p.Cmd.Process.Pid, ssig)
	} else {
		err = p.Cmd.Process.Signal(sig)
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return ErrNotRunning
	}
	return err
}

// Terminate sends SIGTERM.
func (p *Process) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Kill sends SIGKILL.
func (p *Process) Kill() error {
	return p.Signal(syscall.SIGKILL)
}

// Stop ends the process gracefully: SIGTERM, then SIGKILL if it is still
// alive after grace. It blocks until the process has been reaped and is a
// no-op for a process that already exited.
func (p *Process) Stop(grace time.Duration) {
	if p.State() == StateCreated {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}

	_ = p.Terminate()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return
	case <-timer.C:
	}

	_ = p.Kill()
	<-p.done
}

// Close closes the standard stream pipes. It does not signal the process.
func (p *Process) Close() error {
	var errs []error
	for _, c := range []io.Closer{p.Stdin, p.Stdout, p.Stderr} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}
	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	p.Started = time.Now()
	p.state.Store(int32(StateRunning))
	go p.wait()
	return nil
}

func (p *Process) wait() {
	err := p.Cmd.Wait()

	code := 0
	state := StateExited
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				state = StateKilled
			}
		}
	}

	p.exitCode.Store(int32(code))
	p.state.Store(int32(state))
	if p.reaped != nil {
		p.reaped()
	}
	close(p.done)
}
