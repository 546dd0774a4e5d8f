package gdb

import (
	"errors"
	"fmt"
)

// Errors for debugger sessions.
var (
	// ErrIllegalTransition is returned when the session state machine is
	// asked for a transition it does not allow.
	ErrIllegalTransition = errors.New("illegal session state transition")

	// ErrLineTooLong is returned when gdb sends a line longer than
	// MaxLineLength.
	ErrLineTooLong = errors.New("mi line too long")
)

// CommandError is a ^error reply to an MI command.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// CompileError reports a compiler that ran and rejected the source.
type CompileError struct {
	Diagnostics string
	ExitCode    int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compilation failed with exit code %d", e.ExitCode)
}

// TransportError wraps a failure of the channel to gdb (EOF, broken pipe).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
