package mi

import "strings"

// Stop reasons reported by *stopped records.
const (
	ReasonBreakpointHit    = "breakpoint-hit"
	ReasonEndSteppingRange = "end-stepping-range"
	ReasonFunctionFinished = "function-finished"
	ReasonSignalReceived   = "signal-received"
	ReasonExited           = "exited"
	ReasonExitedNormally   = "exited-normally"
	ReasonExitedSignalled  = "exited-signalled"
)

// Stop is the decoded content of a *stopped record.
type Stop struct {
	Reason   string
	Func     string
	File     string
	Fullname string

	// Line is the current source line; HasLine is false when gdb stopped
	// somewhere without line information (library code, startup).
	Line    int
	HasLine bool

	SignalName    string
	SignalMeaning string
	ExitCode      string
	ThreadID      int
}

// Exited reports whether the inferior is gone.
func (s Stop) Exited() bool {
	return strings.HasPrefix(s.Reason, ReasonExited)
}

// Signalled reports whether the inferior stopped on a signal.
func (s Stop) Signalled() bool {
	return s.Reason == ReasonSignalReceived
}

// Stop decodes a *stopped record. ok is false for any other record.
func (r *Record) Stop() (Stop, bool) {
	if !r.IsStopped() {
		return Stop{}, false
	}
	frame := r.Results.Get("frame")
	s := Stop{
		Reason:        r.Results.Get("reason").String(),
		Func:          frame.Get("func").String(),
		File:          frame.Get("file").String(),
		Fullname:      frame.Get("fullname").String(),
		SignalName:    r.Results.Get("signal-name").String(),
		SignalMeaning: r.Results.Get("signal-meaning").String(),
		ExitCode:      r.Results.Get("exit-code").String(),
		ThreadID:      r.Results.Get("thread-id").Int(),
	}
	s.Line, s.HasLine = frame.Get("line").IntOK()
	return s, true
}

// Variable is one entry of a -stack-list-variables or -stack-list-locals
// result.
type Variable struct {
	Name  string
	Type  string
	Value string

	// HasValue is false when the listing was requested without values, or gdb
	// could not read the variable.
	HasValue bool

	// Arg is true for function arguments.
	Arg bool
}

// Variables decodes the variables (or locals) list of a result record.
// Entries that are bare names, as produced by --no-values, are returned with
// HasValue unset.
func (r *Record) Variables() []Variable {
	list := r.Results.Get("variables")
	if list.IsZero() {
		list = r.Results.Get("locals")
	}
	elems := list.Elements()
	out := make([]Variable, 0, len(elems))
	for _, e := range elems {
		switch e.Kind {
		case ValueConst:
			out = append(out, Variable{Name: e.Const})
		case ValueTuple:
			name := e.Get("name").String()
			if name == "" {
				continue
			}
			v := Variable{
				Name: name,
				Type: e.Get("type").String(),
				Arg:  e.Get("arg").String() == "1",
			}
			if val := e.Get("value"); !val.IsZero() {
				v.Value = val.String()
				v.HasValue = true
			}
			out = append(out, v)
		}
	}
	return out
}

// FrameInfo is one entry of a -stack-list-frames result.
type FrameInfo struct {
	Level    int
	Func     string
	File     string
	Fullname string
	Line     int
	Addr     string
}

// Frames decodes the stack list of a result record, innermost first as gdb
// reports it.
func (r *Record) Frames() []FrameInfo {
	elems := r.Results.Get("stack").Elements()
	out := make([]FrameInfo, 0, len(elems))
	for _, e := range elems {
		if e.Kind != ValueTuple {
			continue
		}
		out = append(out, FrameInfo{
			Level:    e.Get("level").Int(),
			Func:     e.Get("func").String(),
			File:     e.Get("file").String(),
			Fullname: e.Get("fullname").String(),
			Line:     e.Get("line").Int(),
			Addr:     e.Get("addr").String(),
		})
	}
	return out
}
