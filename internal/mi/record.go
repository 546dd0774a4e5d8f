package mi

import (
	"slices"
	"strings"
)

// Kind classifies a line of debugger output.
type Kind int

const (
	// KindTarget is a line with no MI marker: output of the debugged program.
	KindTarget Kind = iota
	// KindResult is a "^" record answering a command.
	KindResult
	// KindExec is a "*" exec-async record (running, stopped).
	KindExec
	// KindStatus is a "+" status-async record.
	KindStatus
	// KindNotify is a "=" notify-async record.
	KindNotify
	// KindConsole is a "~" console stream record.
	KindConsole
	// KindTargetStream is a "@" target stream record.
	KindTargetStream
	// KindLog is a "&" log stream record.
	KindLog
	// KindPrompt is the "(gdb)" prompt that ends a burst.
	KindPrompt
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTarget:
		return "target"
	case KindResult:
		return "result"
	case KindExec:
		return "exec"
	case KindStatus:
		return "status"
	case KindNotify:
		return "notify"
	case KindConsole:
		return "console"
	case KindTargetStream:
		return "target-stream"
	case KindLog:
		return "log"
	case KindPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// IsStream reports whether k is one of the three stream kinds.
func (k Kind) IsStream() bool {
	return k == KindConsole || k == KindTargetStream || k == KindLog
}

// IsOutput reports whether records of kind k carry program output.
func (k Kind) IsOutput() bool {
	return k == KindTarget || k == KindTargetStream
}

// Result classes.
const (
	ClassDone      = "done"
	ClassRunning   = "running"
	ClassConnected = "connected"
	ClassError     = "error"
	ClassExit      = "exit"
	ClassStopped   = "stopped"
)

// Record is one decoded line of MI output.
type Record struct {
	// Raw is the line as read, without the trailing newline.
	Raw string

	// Token is the numeric command token, if the line carried one.
	Token string

	Kind Kind

	// Class is the record class of result and async records ("done", "stopped").
	Class string

	// Results holds the name=value pairs of result and async records.
	Results Results

	// Text holds the decoded payload of stream records and the raw text of
	// target lines.
	Text string

	// Err is set when the line could not be fully parsed. Results decoded
	// before the error are kept.
	Err error
}

// IsPrompt reports whether r ends a burst.
func (r *Record) IsPrompt() bool { return r.Kind == KindPrompt }

// IsError reports whether r is a ^error result.
func (r *Record) IsError() bool { return r.Kind == KindResult && r.Class == ClassError }

// IsStopped reports whether r is a *stopped record.
func (r *Record) IsStopped() bool { return r.Kind == KindExec && r.Class == ClassStopped }

// IsRunning reports whether r is a ^running or *running record.
func (r *Record) IsRunning() bool {
	return (r.Kind == KindResult || r.Kind == KindExec) && r.Class == ClassRunning
}

// ErrorMessage returns the msg field of a ^error record.
func (r *Record) ErrorMessage() string {
	return r.Results.Get("msg").String()
}

// Output returns the program output carried by r, or "". Target lines lose
// their newline when split, so it is restored here.
func (r *Record) Output() string {
	switch r.Kind {
	case KindTarget:
		return r.Text + "\n"
	case KindTargetStream:
		return r.Text
	default:
		return ""
	}
}

// Classify returns the kind of line without decoding its body.
func Classify(line string) Kind {
	line = strings.TrimRight(line, "\r\n")
	if isPrompt(line) {
		return KindPrompt
	}
	i := skipToken(line)
	if i >= len(line) {
		return KindTarget
	}
	return markerKind(line[i])
}

func isPrompt(line string) bool {
	return strings.TrimSpace(line) == "(gdb)"
}

// skipToken returns the offset of the first non-digit byte.
func skipToken(line string) int {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i
}

func markerKind(c byte) Kind {
	switch c {
	case '^':
		return KindResult
	case '*':
		return KindExec
	case '+':
		return KindStatus
	case '=':
		return KindNotify
	case '~':
		return KindConsole
	case '@':
		return KindTargetStream
	case '&':
		return KindLog
	default:
		return KindTarget
	}
}

// gluedPrefixes start records that can follow program output on the same line
// when the program's last write did not end in a newline.
var gluedPrefixes = []string{
	"*stopped,", "*running,", "=thread-", "=library-",
	"^done", "^running", "^error,", "~\"", "&\"", "(gdb)",
}

// SplitGlued separates a target line into the program output and the MI
// record glued to its end. The record must run to the end of the line and
// parse cleanly, so program text that merely contains a record marker is
// left whole. ok is false when line holds output only.
func SplitGlued(line string) (output, record string, ok bool) {
	var cuts []int
	for _, p := range gluedPrefixes {
		for from := 1; from < len(line); {
			i := strings.Index(line[from:], p)
			if i < 0 {
				break
			}
			cuts = append(cuts, from+i)
			from += i + 1
		}
	}
	slices.Sort(cuts)

	for _, cut := range cuts {
		tail := line[cut:]
		if isPrompt(tail) {
			return line[:cut], tail, true
		}
		if rec := Parse(tail); rec.Err == nil && rec.Kind != KindTarget {
			return line[:cut], tail, true
		}
	}
	return line, "", false
}
