package trace

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrSealed is returned when a snapshot is appended after the trace failed or
// was finished.
var ErrSealed = errors.New("trace is sealed")

// Trace is a finished execution trace: snapshots in step order followed by the
// terminal events (output first, then error).
type Trace struct {
	Snapshots []Snapshot
	Events    []Event
}

// Len returns the total number of elements, snapshots and events.
func (t Trace) Len() int { return len(t.Snapshots) + len(t.Events) }

// Failure returns the terminal error event, if any.
func (t Trace) Failure() (Event, bool) {
	for _, ev := range t.Events {
		if ev.IsError() {
			return ev, true
		}
	}
	return Event{}, false
}

// Output returns the captured program output, if any.
func (t Trace) Output() string {
	for _, ev := range t.Events {
		if ev.Kind == EventOutput {
			return ev.Data
		}
	}
	return ""
}

// Elements returns the trace as a flat list in wire order.
func (t Trace) Elements() []any {
	out := make([]any, 0, t.Len())
	for i := range t.Snapshots {
		out = append(out, t.Snapshots[i])
	}
	for _, ev := range t.Events {
		out = append(out, ev)
	}
	return out
}

// MarshalJSON encodes the trace as a flat JSON array.
func (t Trace) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Elements())
}

// EncodeMsgpack encodes the trace as a flat msgpack array.
func (t Trace) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(t.Len()); err != nil {
		return err
	}
	for i := range t.Snapshots {
		if err := enc.Encode(&t.Snapshots[i]); err != nil {
			return err
		}
	}
	for i := range t.Events {
		if err := enc.Encode(&t.Events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Assembler accumulates the trace of one request. Snapshots are appended in
// step order; output accumulates across the run; at most one failure is kept.
// Once a failure is recorded no further snapshots are accepted.
//
// Assembler is safe for concurrent use, though a driver normally owns it from
// a single goroutine.
type Assembler struct {
	mu        sync.Mutex
	snapshots []Snapshot
	output    strings.Builder
	failure   *Event
	finished  bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Append adds a snapshot to the trace.
func (a *Assembler) Append(s Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failure != nil || a.finished {
		return ErrSealed
	}
	if s.Heap == nil {
		s.Heap = map[int]HeapObject{}
	}
	if s.Stack == nil {
		s.Stack = []Frame{}
	}
	a.snapshots = append(a.snapshots, s)
	return nil
}

// Output appends captured program output.
func (a *Assembler) Output(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	a.output.WriteString(text)
	a.mu.Unlock()
}

// Fail records the terminal error event. Only the first failure is kept, so
// later cascading errors (for example a broken pipe after a timeout kill) do
// not hide the cause. It reports whether ev was recorded.
func (a *Assembler) Fail(ev Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.failure != nil || a.finished {
		return false
	}
	ev.Kind = EventError
	a.failure = &ev
	return true
}

// Failed reports whether a failure has been recorded.
func (a *Assembler) Failed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure != nil
}

// Len returns the number of snapshots appended so far.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

// LastLine returns the line of the most recent snapshot, or 0.
func (a *Assembler) LastLine() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.snapshots) == 0 {
		return 0
	}
	return a.snapshots[len(a.snapshots)-1].Line
}

// Finish seals the assembler and returns the trace. Output, if any, precedes
// the failure so a faulting run always ends with its error event.
func (a *Assembler) Finish() Trace {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.finished = true
	t := Trace{Snapshots: a.snapshots}
	if t.Snapshots == nil {
		t.Snapshots = []Snapshot{}
	}
	if a.output.Len() > 0 {
		t.Events = append(t.Events, OutputEvent(a.output.String()))
	}
	if a.failure != nil {
		t.Events = append(t.Events, *a.failure)
	}
	return t
}
