package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dshills/traceview/internal/recorder"
)

const loopProgram = "local s = 0\nfor i = 1, 3 do\n  s = s + i\nend\nprint(s)\n"

// execute runs the command line with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("TRACEVIEW_LOG_LEVEL", "error")

	var stdout, stderr, logs bytes.Buffer
	cmd := NewRootCmd(&logs)
	cmd.SetArgs(append([]string{"--color", "off"}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeProgram(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o600))
	return path
}

func TestTraceCommand(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "sum.lua", loopProgram)

	stdout, stderr, err := execute(t, "", "trace", path)
	require.NoError(t, err)

	doc := gjson.Parse(stdout)
	elems := doc.Array()
	require.Len(t, elems, 7, "six snapshots and the output event")
	assert.Equal(t, int64(1), elems[0].Get("line_number").Int())
	assert.Equal(t, "6", elems[5].Get("stack.0.locals.s.value").String())
	assert.Equal(t, "6\n", elems[6].Get("data").String())
	assert.Equal(t, path+": 6 steps\n", stderr)
}

func TestTraceCommandFlags(t *testing.T) {
	path := writeProgram(t, t.TempDir(), "sum.lua", loopProgram)

	stdout, _, err := execute(t, "", "trace", "--max-steps", "2", "--pretty", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "\n  {")
	assert.Len(t, gjson.Parse(stdout).Array(), 2, "budget exhaustion is silent")
}

func TestTraceCommandStdin(t *testing.T) {
	stdout, stderr, err := execute(t, "x = nil + 1\n", "trace", "--lang", "lua", "-")
	require.NoError(t, err)

	elems := gjson.Parse(stdout).Array()
	require.NotEmpty(t, elems)
	last := elems[len(elems)-1]
	assert.Equal(t, "error", last.Get("event").String())
	assert.Equal(t, "RuntimeError", last.Get("error_type").String())
	assert.Contains(t, stderr, "RuntimeError at line 1")

	_, _, err = execute(t, "x = 1", "trace", "-")
	assert.ErrorContains(t, err, "--lang is required")
}

func TestTraceCommandMsgpack(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "sum.lua", loopProgram)
	out := filepath.Join(dir, "sum.mp")

	_, _, err := execute(t, "", "trace", "--format", "msgpack", "-o", out, path)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 7)
	assert.EqualValues(t, 1, decoded[0]["line_number"])
}

func TestTraceCommandErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "", "trace", writeProgram(t, dir, "prog.py", "print(1)"))
	assert.ErrorIs(t, err, recorder.ErrUnknownLanguage)

	_, _, err = execute(t, "", "trace", filepath.Join(dir, "missing.lua"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = execute(t, "", "trace", "--format", "xml", writeProgram(t, dir, "a.lua", ""))
	assert.ErrorContains(t, err, "unknown trace format")

	_, _, err = execute(t, "", "trace", "--color", "sometimes", writeProgram(t, dir, "b.lua", ""))
	assert.ErrorContains(t, err, "invalid --color")

	_, _, err = execute(t, "", "trace", "--max-steps", "0", writeProgram(t, dir, "c.lua", ""))
	assert.ErrorContains(t, err, "tracing.max_steps")
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	var paths []string
	for i, src := range []string{loopProgram, "error('stop')\n", "local t = {}\n"} {
		paths = append(paths, writeProgram(t, dir, string(rune('a'+i))+".lua", src))
	}

	_, stderr, err := execute(t, "", append([]string{"batch", "-j", "2", "--out-dir", outDir}, paths...)...)
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		data, err := os.ReadFile(filepath.Join(outDir, name+".trace.json"))
		require.NoError(t, err, name)
		assert.True(t, gjson.ValidBytes(data), name)
	}
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "6 steps"), lines[0])
	assert.Contains(t, lines[1], "RuntimeError at line 1")
	assert.True(t, strings.HasSuffix(lines[2], "1 steps"), lines[2])
}

func TestBatchCommandRejectsNoJobs(t *testing.T) {
	dir := t.TempDir()
	path := writeProgram(t, dir, "a.lua", loopProgram)

	for _, jobs := range []string{"0", "-3"} {
		_, _, err := execute(t, "", "batch", "--jobs="+jobs, path)
		assert.ErrorContains(t, err, "--jobs must be at least 1", jobs)
	}
	_, err := os.Stat(filepath.Join(dir, "a.trace.json"))
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing traced")
}

func TestConfigCommand(t *testing.T) {
	cfgPath := writeProgram(t, t.TempDir(), "traceview.yaml", "tracing:\n  max_steps: 77\n")

	stdout, _, err := execute(t, "", "--config", cfgPath, "--timeout", "3s", "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "max_steps = 77")
	assert.Contains(t, stdout, "timeout = '3s'")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "traceview dev\n"), stdout)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("src", "sort.trace.json"), outputPath(filepath.Join("src", "sort.cpp"), "", "json"))
	assert.Equal(t, filepath.Join("out", "sort.trace.msgpack"), outputPath(filepath.Join("src", "sort.cpp"), "out", "msgpack"))
}
