package process

import "errors"

var (
	// ErrNotRunning is returned when signalling a process that is not running.
	ErrNotRunning = errors.New("process not running")

	// ErrAlreadyStarted is returned when starting a process twice.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrShutdown is returned by Start once the supervisor is shutting down.
	ErrShutdown = errors.New("supervisor is shutting down")

	// ErrLimit is returned by Start when the process limit is reached.
	ErrLimit = errors.New("process limit reached")
)
