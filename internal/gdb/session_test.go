package gdb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exchange is one scripted command and gdb's reply to it.
type exchange struct {
	cmd   string
	reply []string
}

// scriptTransport replays a recorded conversation. Commands must arrive in
// script order.
type scriptTransport struct {
	queue  []string
	script []exchange
	sent   []string
}

func newScript(banner []string, script ...exchange) *scriptTransport {
	return &scriptTransport{queue: append([]string(nil), banner...), script: script}
}

func (s *scriptTransport) Send(cmd string) error {
	s.sent = append(s.sent, cmd)
	if cmd == "-gdb-exit" {
		return nil
	}
	if len(s.script) == 0 {
		return fmt.Errorf("unexpected command %q", cmd)
	}
	next := s.script[0]
	if cmd != next.cmd {
		return fmt.Errorf("command %q, want %q", cmd, next.cmd)
	}
	s.script = s.script[1:]
	s.queue = append(s.queue, next.reply...)
	return nil
}

func (s *scriptTransport) Receive() (string, error) {
	if len(s.queue) == 0 {
		return "", &TransportError{Op: "receive", Err: io.EOF}
	}
	line := s.queue[0]
	s.queue = s.queue[1:]
	return line, nil
}

func (s *scriptTransport) Close() error { return nil }

const progPath = "/tmp/traceview_test/prog.cpp"

var banner = []string{`=thread-group-added,id="i1"`, `(gdb)`}

func done(extra ...string) []string {
	return append(extra, `^done`, `(gdb)`)
}

func stoppedAt(reason, fn string, line int) string {
	return fmt.Sprintf(`*stopped,reason="%s",frame={addr="0x1151",func="%s",args=[],file="prog.cpp",fullname="%s",line="%d",arch="i386:x86-64"},thread-id="1",stopped-threads="all",core="0"`,
		reason, fn, progPath, line)
}

func running(after ...string) []string {
	return append([]string{`^running`, `*running,thread-id="all"`, `(gdb)`}, after...)
}

// handshake is the conversation up to the stop on main at line.
func handshake(line int) []exchange {
	return handshakeArgs(line, "-exec-arguments < /dev/null")
}

// handshakeArgs is handshake with a given -exec-arguments command.
func handshakeArgs(line int, args string) []exchange {
	ex := []exchange{{"-gdb-set confirm off", done()}}
	if runtime.GOOS != "windows" {
		ex = append(ex, exchange{args, done()})
	}
	return append(ex,
		exchange{"-break-insert main", []string{
			`^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",func="main",file="prog.cpp",line="3"}`,
			`(gdb)`,
		}},
		exchange{"-exec-run", append([]string{`=thread-group-started,id="i1",pid="4242"`},
			running(stoppedAt("breakpoint-hit", "main", line), `(gdb)`)...)},
	)
}

func TestSessionHandshake(t *testing.T) {
	tr := newScript(banner, handshake(3)...)
	s := NewSession(tr, logr.Discard())

	require.NoError(t, s.Handshake())
	assert.Equal(t, StateRunning, s.State())

	stop, err := s.AwaitStop()
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, "main", stop.Func)
	assert.Equal(t, 3, stop.Line)
	assert.Equal(t, "-break-insert main", tr.sent[len(tr.sent)-2])
}

func TestSessionCollectsProgramOutput(t *testing.T) {
	script := append(handshake(3), exchange{"-exec-next", running(
		"hello",
		`@"from target stream\n"`,
		`no newline`+stoppedAt("end-stepping-range", "main", 4),
		`(gdb)`,
	)})
	s := NewSession(newScript(banner, script...), logr.Discard())
	require.NoError(t, s.Handshake())
	_, err := s.AwaitStop()
	require.NoError(t, err)

	require.NoError(t, s.Resume("-exec-next"))
	assert.Equal(t, StateStepping, s.State())
	stop, err := s.AwaitStop()
	require.NoError(t, err)

	assert.Equal(t, 4, stop.Line)
	assert.Equal(t, "hello\nfrom target stream\nno newline", s.Output())
}

func TestSessionReadsRedirectedOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("output redirection uses a shell")
	}
	out := filepath.Join(t.TempDir(), "it's.stdout")
	script := append(handshakeArgs(3, `-exec-arguments < /dev/null > '`+strings.ReplaceAll(out, "'", `'\''`)+`' 2>&1`),
		exchange{"-exec-continue", running(`*stopped,reason="exited-normally"`, `(gdb)`)},
	)
	tr := newScript(banner, script...)
	s := NewSession(tr, logr.Discard())
	s.RedirectOutput(out)

	assert.Empty(t, s.Output(), "no file yet")

	require.NoError(t, s.Handshake())
	_, err := s.AwaitStop()
	require.NoError(t, err)

	// Lines that open with MI markers are program text here, not records.
	require.NoError(t, os.WriteFile(out, []byte("=== sorted ===\n+1 more\n*done*\n"), 0o600))

	require.NoError(t, s.Resume("-exec-continue"))
	stop, err := s.AwaitStop()
	require.NoError(t, err)
	assert.True(t, stop.Exited())
	assert.Empty(t, tr.script)
	assert.Equal(t, "=== sorted ===\n+1 more\n*done*\n", s.Output())
}

func TestSessionCommandError(t *testing.T) {
	tr := newScript(banner,
		exchange{"-gdb-set confirm off", done()},
		exchange{"-break-insert nowhere", []string{`^error,msg="Function \"nowhere\" not defined."`, `(gdb)`}},
	)
	s := NewSession(tr, logr.Discard())
	_, err := s.burst()
	require.NoError(t, err)
	_, err = s.Command("-gdb-set confirm off")
	require.NoError(t, err)

	_, err = s.Command("-break-insert nowhere")
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, `Function "nowhere" not defined.`, cerr.Message)
}

func TestSessionSkipsStalePrompts(t *testing.T) {
	tr := newScript(nil, exchange{"-stack-list-frames", []string{
		`(gdb)`,
		`^done,stack=[frame={level="0",func="main",file="prog.cpp",line="5"}]`,
		`(gdb)`,
	}})
	s := NewSession(tr, logr.Discard())
	s.machine.state = StateStopped

	frames, err := s.Frames()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 5, frames[0].Line)
}

func TestSessionBrokenChannel(t *testing.T) {
	tr := newScript([]string{`=thread-group-added,id="i1"`})
	s := NewSession(tr, logr.Discard())

	err := s.Handshake()
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSessionRequiresStopped(t *testing.T) {
	s := NewSession(newScript(nil), logr.Discard())

	_, err := s.Variables(1, 0, PrintAll)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, s.Resume("-exec-next"), ErrIllegalTransition)
}

func TestStreamTransport(t *testing.T) {
	r := io.NopCloser(strings.NewReader("^done\r\n(gdb)\npartial"))
	w := &closeBuffer{}
	tr := NewStreamTransport(w, r)

	require.NoError(t, tr.Send("-exec-next"))
	assert.Equal(t, "-exec-next\n", w.String())

	for _, want := range []string{"^done", "(gdb)", "partial"} {
		line, err := tr.Receive()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err := tr.Receive()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, tr.Close())
}

type closeBuffer struct {
	strings.Builder
}

func (*closeBuffer) Close() error { return nil }
