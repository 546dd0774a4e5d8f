package gdb

import (
	"fmt"
	"slices"
)

// State is the protocol state of a debugger session.
type State int

const (
	// StateLaunching is the state from process start until the breakpoint on
	// main is set.
	StateLaunching State = iota
	// StateBreakpointArmed is after -break-insert main succeeded.
	StateBreakpointArmed
	// StateRunning is after -exec-run, until the first stop.
	StateRunning
	// StateStopped is when the inferior is stopped and may be inspected.
	StateStopped
	// StateStepping is after a step command, until the next stop.
	StateStepping
	// StateExited is when the inferior has exited.
	StateExited
	// StateFailed is when the session broke down.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateBreakpointArmed:
		return "breakpoint-armed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateStepping:
		return "stepping"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateFailed
}

// transitions lists the states reachable from each state, apart from
// StateFailed which is reachable from every non-terminal state.
var transitions = map[State][]State{
	StateLaunching:       {StateBreakpointArmed},
	StateBreakpointArmed: {StateRunning},
	StateRunning:         {StateStopped, StateExited},
	StateStopped:         {StateStepping},
	StateStepping:        {StateStopped, StateExited},
}

// Machine tracks the state of one session. It is owned by the session's
// goroutine.
type Machine struct {
	state State
	// OnChange, if set, is called after every transition.
	OnChange func(old, new State)
}

// NewMachine returns a machine in StateLaunching.
func NewMachine() *Machine {
	return &Machine{state: StateLaunching}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// To moves the machine to next.
func (m *Machine) To(next State) error {
	cur := m.state
	if cur.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	if next != StateFailed && !slices.Contains(transitions[cur], next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	m.state = next
	if m.OnChange != nil {
		m.OnChange(cur, next)
	}
	return nil
}
