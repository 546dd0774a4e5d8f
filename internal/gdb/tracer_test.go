package gdb

import (
	"context"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/traceview/internal/governor"
	"github.com/dshills/traceview/internal/trace"
)

func framesAt(line int) exchange {
	return exchange{"-stack-list-frames", []string{
		`^done,stack=[frame={level="0",addr="0x1151",func="main",file="prog.cpp",fullname="` + progPath + `",line="` + strconv.Itoa(line) + `"},` +
			`frame={level="1",addr="0x7ffff7829d90",func="__libc_start_call_main",from="/lib/x86_64-linux-gnu/libc.so.6"}]`,
		`(gdb)`,
	}}
}

func varsOf(list string) exchange {
	return exchange{"-stack-list-variables --thread 1 --frame 0 --all-values", []string{
		`^done,variables=[` + list + `]`,
		`(gdb)`,
	}}
}

func runRecord(t *testing.T, tr *Tracer, ctx context.Context, script ...exchange) (trace.Trace, *scriptTransport) {
	t.Helper()
	transport := newScript(banner, script...)
	sess := NewSession(transport, logr.Discard())
	asm := trace.NewAssembler()
	tr.record(ctx, logr.Discard(), sess, progPath, asm)
	return asm.Finish(), transport
}

func TestRecordRunsToExit(t *testing.T) {
	script := append(handshake(3),
		framesAt(3),
		varsOf(`{name="x",type="int",value="21845"}`),
		exchange{"-exec-next", running("hi", stoppedAt("end-stepping-range", "main", 4), `(gdb)`)},
		framesAt(4),
		varsOf(`{name="x",type="int",value="1"},{name="a",type="int [3]"}`),
		exchange{"-exec-next", running(`*stopped,reason="exited-normally"`, `(gdb)`)},
	)
	got, transport := runRecord(t, New(), context.Background(), script...)

	require.Len(t, got.Snapshots, 2)
	assert.Empty(t, transport.script, "every scripted command sent")

	first := got.Snapshots[0]
	assert.Equal(t, 3, first.Line)
	require.Len(t, first.Stack, 1, "library frames dropped")
	assert.Equal(t, "main", first.Stack[0].FuncName)
	assert.Equal(t, trace.Primitive("21845"), first.Stack[0].Locals["x"])
	assert.Empty(t, first.Heap)

	second := got.Snapshots[1]
	assert.Equal(t, 4, second.Line)
	assert.Equal(t, trace.Primitive("<int [3]>"), second.Stack[0].Locals["a"])

	_, failed := got.Failure()
	assert.False(t, failed)
	assert.Equal(t, "hi\n", got.Output())
}

func TestRecordSignal(t *testing.T) {
	script := append(handshake(3),
		framesAt(3),
		varsOf(``),
		exchange{"-exec-next", running(
			"partial",
			`*stopped,reason="signal-received",signal-name="SIGSEGV",signal-meaning="Segmentation fault",frame={addr="0x116a",func="main",args=[],file="prog.cpp",fullname="`+progPath+`",line="5"},thread-id="1"`,
			`(gdb)`,
		)},
	)
	got, _ := runRecord(t, New(), context.Background(), script...)

	require.Len(t, got.Snapshots, 1)
	require.Len(t, got.Events, 2)
	assert.Equal(t, trace.OutputEvent("partial\n"), got.Events[0])
	assert.Equal(t, trace.ErrorEvent(5, "SIGSEGV", "Segmentation fault"), got.Events[1])
}

func TestRecordStopsAtBudget(t *testing.T) {
	script := append(handshake(3),
		framesAt(3),
		varsOf(``),
		exchange{"-exec-next", running(stoppedAt("end-stepping-range", "main", 4), `(gdb)`)},
	)
	got, transport := runRecord(t, New(WithMaxSteps(1)), context.Background(), script...)

	assert.Len(t, got.Snapshots, 1)
	assert.Empty(t, got.Events)
	assert.Empty(t, transport.script)
}

func TestRecordContinuesWhenStepRefused(t *testing.T) {
	script := append(handshake(3),
		framesAt(3),
		varsOf(``),
		exchange{"-exec-next", []string{`^error,msg="Cannot find bounds of current function"`, `(gdb)`}},
		exchange{"-exec-continue", running("done", `*stopped,reason="exited",exit-code="03"`, `(gdb)`)},
	)
	got, transport := runRecord(t, New(), context.Background(), script...)

	assert.Len(t, got.Snapshots, 1)
	assert.Empty(t, transport.script)
	assert.Equal(t, "done\n", got.Output())
	_, failed := got.Failure()
	assert.False(t, failed)
}

func TestRecordStepIntoFinishesLibraryCode(t *testing.T) {
	libStop := `*stopped,reason="end-stepping-range",frame={addr="0x2000",func="std::vector<int>::push_back",file="/usr/include/c++/13/bits/stl_vector.h",fullname="/usr/include/c++/13/bits/stl_vector.h",line="1280"},thread-id="1"`
	script := append(handshake(3),
		framesAt(3),
		varsOf(``),
		exchange{"-exec-step", running(libStop, `(gdb)`)},
		exchange{"-exec-finish", running(stoppedAt("function-finished", "main", 4), `(gdb)`)},
		framesAt(4),
		varsOf(``),
		exchange{"-exec-step", running(`*stopped,reason="exited-normally"`, `(gdb)`)},
	)
	got, transport := runRecord(t, New(WithStepMode(StepInto)), context.Background(), script...)

	require.Len(t, got.Snapshots, 2)
	assert.Equal(t, 3, got.Snapshots[0].Line)
	assert.Equal(t, 4, got.Snapshots[1].Line)
	assert.Empty(t, transport.script)
}

func TestRecordCurrentFrameOnly(t *testing.T) {
	script := append(handshake(3),
		exchange{"-stack-list-variables --simple-values", []string{`^done,variables=[{name="n",arg="1",type="int",value="2"}]`, `(gdb)`}},
		exchange{"-exec-next", running(`*stopped,reason="exited-normally"`, `(gdb)`)},
	)
	got, _ := runRecord(t, New(WithFullStack(false), WithPrintValues(PrintSimple)), context.Background(), script...)

	require.Len(t, got.Snapshots, 1)
	require.Len(t, got.Snapshots[0].Stack, 1)
	assert.Equal(t, trace.Primitive("2"), got.Snapshots[0].Stack[0].Locals["n"])
}

func TestRecordProtocolError(t *testing.T) {
	script := handshake(3)
	for i := range script {
		if script[i].cmd == "-break-insert main" {
			script[i].reply = []string{`^error,msg="No symbol table is loaded."`, `(gdb)`}
		}
	}
	got, _ := runRecord(t, New(), context.Background(), script...)

	ev, failed := got.Failure()
	require.True(t, failed)
	assert.Equal(t, trace.ErrorProtocol, ev.ErrorType)
	assert.Contains(t, ev.ErrorMessage, "No symbol table is loaded.")
	assert.Empty(t, got.Snapshots)
}

func TestRecordLostDebugger(t *testing.T) {
	script := append(handshake(3),
		framesAt(3),
		varsOf(``),
		exchange{"-exec-next", []string{`^running`, `(gdb)`}},
	)
	got, _ := runRecord(t, New(), context.Background(), script...)

	ev, failed := got.Failure()
	require.True(t, failed)
	assert.Equal(t, trace.ErrorResource, ev.ErrorType)
	assert.Equal(t, 3, ev.Line)
}

func TestRecordCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, _ := runRecord(t, New(), ctx, handshake(3)...)

	ev, failed := got.Failure()
	require.True(t, failed)
	assert.Equal(t, trace.ErrorResource, ev.ErrorType)
	assert.Equal(t, "trace cancelled", ev.ErrorMessage)
}

func TestSameFile(t *testing.T) {
	assert.True(t, sameFile("prog.cpp", "/tmp/x/../x/prog.cpp", "/tmp/x/prog.cpp"))
	assert.True(t, sameFile("prog.cpp", "", "/tmp/x/prog.cpp"))
	assert.False(t, sameFile("", "", "/tmp/x/prog.cpp"))
	assert.False(t, sameFile("stl_vector.h", "/usr/include/stl_vector.h", "/tmp/x/prog.cpp"))
}

// Tests below drive the real toolchain.

func requireTools(t *testing.T, tools ...string) {
	t.Helper()
	if testing.Short() {
		t.Skip("toolchain test in short mode")
	}
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not installed", tool)
		}
	}
}

const bubbleSort = `#include <cstdio>

int main() {
  int a[7] = {64, 34, 25, 12, 22, 11, 90};
  int n = 7;
  for (int i = 0; i < n - 1; i++) {
    for (int j = 0; j < n - i - 1; j++) {
      if (a[j] > a[j + 1]) {
        int t = a[j];
        a[j] = a[j + 1];
        a[j + 1] = t;
      }
    }
  }
  printf("%d %d %d %d %d %d %d\n", a[0], a[1], a[2], a[3], a[4], a[5], a[6]);
  return 0;
}
`

// parseArray decodes gdb's rendering of an int array, "{1, 2, 3}".
func parseArray(t *testing.T, text string) []int {
	t.Helper()
	fields := strings.Split(strings.Trim(text, "{}"), ", ")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		require.NoError(t, err, "array %q", text)
		out = append(out, n)
	}
	return out
}

func TestTraceBubbleSort(t *testing.T) {
	requireTools(t, "g++", "gdb")
	dir := t.TempDir()
	tr := New(WithWorkDir(dir), WithWatchdog(governor.NewWatchdog(60*time.Second, time.Second)))

	got := tr.Trace(context.Background(), bubbleSort)

	if ev, failed := got.Failure(); failed {
		t.Fatalf("trace failed: %s: %s", ev.ErrorType, ev.ErrorMessage)
	}
	require.NotEmpty(t, got.Snapshots)
	assert.Equal(t, 4, got.Snapshots[0].Line)
	assert.Equal(t, "11 12 22 25 34 64 90\n", got.Output())

	sorted := []int{11, 12, 22, 25, 34, 64, 90}
	var (
		prev    []int
		swaps   int
		settled bool
	)
	for _, snap := range got.Snapshots[1:] {
		require.NotEmpty(t, snap.Stack)
		assert.Equal(t, "main", snap.Stack[0].FuncName)
		xs := parseArray(t, snap.Stack[0].Locals["a"].Text())
		if prev != nil && !slices.Equal(prev, xs) {
			assert.False(t, settled, "array changed after it was sorted, at line %d", snap.Line)
			swaps++
		}
		if slices.Equal(xs, sorted) {
			settled = true
		}
		prev = xs
	}

	final := parseArray(t, got.Snapshots[len(got.Snapshots)-1].Stack[0].Locals["a"].Text())
	assert.Equal(t, sorted, final)
	assert.Positive(t, swaps)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "artifacts removed")
}

func TestTraceKeepsMarkerLinesInOutput(t *testing.T) {
	requireTools(t, "g++", "gdb")
	dir := t.TempDir()
	tr := New(WithWorkDir(dir), WithWatchdog(governor.NewWatchdog(60*time.Second, time.Second)))

	got := tr.Trace(context.Background(), `#include <cstdio>

int main() {
  puts("=== sorted ===");
  puts("+1 more");
  puts("*done*");
  return 0;
}
`)

	if ev, failed := got.Failure(); failed {
		t.Fatalf("trace failed: %s: %s", ev.ErrorType, ev.ErrorMessage)
	}
	assert.Equal(t, "=== sorted ===\n+1 more\n*done*\n", got.Output())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "artifacts removed")
}

func TestTraceCompileError(t *testing.T) {
	requireTools(t, "g++")
	dir := t.TempDir()

	got := New(WithWorkDir(dir)).Trace(context.Background(), "int main() { return missing; }\n")

	require.Equal(t, 1, got.Len())
	ev, failed := got.Failure()
	require.True(t, failed)
	assert.Equal(t, trace.ErrorCompilation, ev.ErrorType)
	assert.Contains(t, ev.ErrorMessage, "missing")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTraceTimeout(t *testing.T) {
	requireTools(t, "g++", "gdb")
	dir := t.TempDir()
	tr := New(WithWorkDir(dir), WithMaxSteps(1_000_000),
		WithWatchdog(governor.NewWatchdog(2*time.Second, 200*time.Millisecond)))

	start := time.Now()
	got := tr.Trace(context.Background(), "int main() {\n  volatile int x = 0;\n  while (true) { x++; }\n}\n")

	assert.Less(t, time.Since(start), 15*time.Second)
	ev, failed := got.Failure()
	require.True(t, failed)
	assert.Equal(t, trace.ErrorTimeout, ev.ErrorType)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
