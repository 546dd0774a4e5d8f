package process

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Supervisor starts child processes and keeps track of them until they exit.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process
	wg        sync.WaitGroup

	closed atomic.Bool

	// maxProcesses caps concurrently live children; 0 means unlimited.
	maxProcesses int

	// groups starts each child in its own process group and signals the
	// whole group.
	groups bool

	log logr.Logger
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses caps the number of live children.
func WithMaxProcesses(n int) SupervisorOption {
	return func(s *Supervisor) {
		s.maxProcesses = n
	}
}

// WithProcessGroups makes signals reach the child's descendants too. A
// debugger's inferior is such a descendant.
func WithProcessGroups() SupervisorOption {
	return func(s *Supervisor) {
		s.groups = true
	}
}

// WithLogger sets the supervisor's logger.
func WithLogger(log logr.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.log = log
	}
}

// NewSupervisor creates a supervisor with no children.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches cmd under a fresh id. Standard streams the caller left nil
// are piped and exposed on the returned Process.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrShutdown
	}
	if s.maxProcesses > 0 && len(s.processes) >= s.maxProcesses {
		return nil, fmt.Errorf("%w: %d", ErrLimit, s.maxProcesses)
	}

	proc := newProcess(uuid.NewString(), name, cmd)
	proc.reaped = func() { s.forget(proc) }
	if s.groups {
		setGroup(cmd)
		proc.group = true
	}
	childEnds, err := pipe(proc)
	if err != nil {
		return nil, err
	}
	err = proc.start()
	closeAll(childEnds)
	if err != nil {
		_ = proc.Close()
		return nil, err
	}

	s.processes[proc.ID] = proc
	s.wg.Add(1)

	s.log.V(1).Info("process started", "name", name, "id", proc.ID, "pid", proc.PID())
	return proc, nil
}

// pipe connects the streams the caller left nil to OS pipes. The child ends
// are returned so they can be closed once the child has started; the parent
// ends stay open until Process.Close, so reads are not cut short when the
// child is reaped.
func pipe(proc *Process) ([]*os.File, error) {
	cmd := proc.Cmd
	var parent, child []*os.File
	fail := func(stream string, err error) ([]*os.File, error) {
		for _, f := range append(parent, child...) {
			_ = f.Close()
		}
		return nil, fmt.Errorf("create %s pipe: %w", stream, err)
	}

	if cmd.Stdin == nil {
		r, w, err := os.Pipe()
		if err != nil {
			return fail("stdin", err)
		}
		cmd.Stdin = r
		proc.Stdin = w
		parent, child = append(parent, w), append(child, r)
	}
	if cmd.Stdout == nil {
		r, w, err := os.Pipe()
		if err != nil {
			return fail("stdout", err)
		}
		cmd.Stdout = w
		proc.Stdout = r
		parent, child = append(parent, r), append(child, w)
	}
	if cmd.Stderr == nil {
		r, w, err := os.Pipe()
		if err != nil {
			return fail("stderr", err)
		}
		cmd.Stderr = w
		proc.Stderr = r
		parent, child = append(parent, r), append(child, w)
	}
	return child, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// forget drops an exited process. It runs before the process's Done channel
// closes, so a waiter on Done always finds the slot free.
func (s *Supervisor) forget(proc *Process) {
	defer s.wg.Done()

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()

	s.log.V(1).Info("process exited", "name", proc.Name, "id", proc.ID,
		"state", proc.State().String(), "code", proc.ExitCode(), "runtime", time.Since(proc.Started))
}

// List returns the live processes.
func (s *Supervisor) List() []*Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		out = append(out, p)
	}
	return out
}

// Shutdown refuses new processes, stops every live one (SIGTERM, then SIGKILL
// after grace), and waits until all of them have been reaped.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	already := s.closed.Swap(true)
	s.mu.Unlock()
	if already {
		s.wg.Wait()
		return
	}

	procs := s.List()
	if len(procs) > 0 {
		s.log.Info("stopping child processes", "count", len(procs))
	}

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *Process) {
			defer wg.Done()
			p.Stop(grace)
		}(p)
	}
	wg.Wait()
	s.wg.Wait()
}
