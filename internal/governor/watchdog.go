package governor

import (
	"context"
	"errors"
	"time"
)

// Defaults for Watchdog.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultKillGrace = 2 * time.Second
)

// Watchdog applies the request deadline.
type Watchdog struct {
	timeout time.Duration
	grace   time.Duration
}

// NewWatchdog creates a watchdog. Non-positive values fall back to the
// defaults.
func NewWatchdog(timeout, grace time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	return &Watchdog{timeout: timeout, grace: grace}
}

// Timeout returns the request deadline.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Grace returns the time allowed between SIGTERM and SIGKILL.
func (w *Watchdog) Grace() time.Duration { return w.grace }

// Context derives the request context from parent.
func (w *Watchdog) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, w.timeout)
}

// Guard calls stop with the grace period if ctx ends before the returned
// release function is called. release blocks until a running stop has
// returned, so it is safe to clean up after it.
func (w *Watchdog) Guard(ctx context.Context, stop func(grace time.Duration)) (release func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			stop(w.grace)
		case <-quit:
		}
	}()

	var released bool
	return func() {
		if released {
			return
		}
		released = true
		close(quit)
		<-done
	}
}

// Expired reports whether ctx ended because its deadline passed.
func Expired(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
