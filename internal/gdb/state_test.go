package gdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	var seen []State
	m.OnChange = func(_, next State) { seen = append(seen, next) }

	for _, next := range []State{
		StateBreakpointArmed,
		StateRunning,
		StateStopped,
		StateStepping,
		StateStopped,
		StateStepping,
		StateExited,
	} {
		require.NoError(t, m.To(next), "-> %s", next)
	}
	assert.Equal(t, StateExited, m.State())
	assert.Len(t, seen, 7)
}

func TestMachineRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		bad  State
	}{
		{"run before breakpoint", nil, StateRunning},
		{"step while running", []State{StateBreakpointArmed, StateRunning}, StateStepping},
		{"leave exited", []State{StateBreakpointArmed, StateRunning, StateExited}, StateStopped},
		{"fail twice", []State{StateFailed}, StateFailed},
		{"stopped to exited", []State{StateBreakpointArmed, StateRunning, StateStopped}, StateExited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for _, s := range tt.path {
				require.NoError(t, m.To(s))
			}
			before := m.State()
			assert.ErrorIs(t, m.To(tt.bad), ErrIllegalTransition)
			assert.Equal(t, before, m.State(), "state unchanged")
		})
	}
}

func TestMachineFailedFromAnyLiveState(t *testing.T) {
	for _, s := range []State{StateLaunching, StateBreakpointArmed, StateRunning, StateStopped, StateStepping} {
		m := &Machine{state: s}
		assert.NoError(t, m.To(StateFailed), "from %s", s)
		assert.True(t, m.State().IsTerminal())
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "breakpoint-armed", StateBreakpointArmed.String())
	assert.Equal(t, "unknown", State(99).String())
}
