package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/traceview/internal/trace"
)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	errorColor = color.New(color.FgRed, color.Bold)
	nameColor  = color.New(color.FgCyan)
)

// summarize writes a one-line outcome of a trace to w.
func summarize(w io.Writer, name string, t trace.Trace) {
	nameColor.Fprint(w, name)
	fmt.Fprint(w, ": ")

	ev, failed := t.Failure()
	if !failed {
		okColor.Fprintf(w, "%d steps", len(t.Snapshots))
		fmt.Fprintln(w)
		return
	}

	where := ""
	if ev.Line > 0 {
		where = fmt.Sprintf(" at line %d", ev.Line)
	}
	errorColor.Fprint(w, ev.ErrorType)
	fmt.Fprintf(w, "%s after %d steps: %s\n", where, len(t.Snapshots), firstLine(ev.ErrorMessage))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// extension returns the file extension for traces in format.
func extension(format trace.Format) string {
	if format == trace.FormatMsgpack {
		return ".trace.msgpack"
	}
	return ".trace.json"
}
