package luatrace

import "errors"

// Errors for Lua tracing.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrStepBudget is the cause recorded when the step budget stops a run.
	ErrStepBudget = errors.New("step budget exhausted")
)
