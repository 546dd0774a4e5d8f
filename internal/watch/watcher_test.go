package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(WithDelay(20 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func expectChange(t *testing.T, w *Watcher, want string) {
	t.Helper()
	select {
	case got := <-w.Changes():
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("no change reported for %s", want)
	}
}

func expectQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case got := <-w.Changes():
		t.Fatalf("unexpected change %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAddErrors(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()

	assert.ErrorIs(t, w.Add(filepath.Join(dir, "missing.lua")), ErrPathNotExist)
	assert.ErrorIs(t, w.Add(dir), ErrNotRegular)

	require.NoError(t, w.Close())
	path := filepath.Join(dir, "a.lua")
	writeFile(t, path, "x = 1")
	assert.ErrorIs(t, w.Add(path), ErrWatcherClosed)
}

func TestReportsWrites(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lua")
	writeFile(t, path, "x = 1")
	require.NoError(t, w.Add(path))
	require.NoError(t, w.Add(path), "adding twice is harmless")
	assert.Len(t, w.Files(), 1)

	writeFile(t, path, "x = 2")
	expectChange(t, w, path)
}

func TestCoalescesBursts(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lua")
	writeFile(t, path, "")
	require.NoError(t, w.Add(path))

	for i := range 5 {
		writeFile(t, path, string(rune('a'+i)))
	}
	expectChange(t, w, path)
	expectQuiet(t, w)
}

func TestIgnoresOtherFiles(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lua")
	writeFile(t, path, "")
	require.NoError(t, w.Add(path))

	writeFile(t, filepath.Join(dir, "other.lua"), "y = 1")
	expectQuiet(t, w)
}

func TestFollowsRenameOver(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.cpp")
	writeFile(t, path, "int main() {}")
	require.NoError(t, w.Add(path))

	tmp := filepath.Join(dir, ".prog.cpp.swp")
	writeFile(t, tmp, "int main() { return 1; }")
	require.NoError(t, os.Rename(tmp, path))
	expectChange(t, w, path)
}

func TestRunStopsWithContext(t *testing.T) {
	w := newWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lua")
	writeFile(t, path, "")
	require.NoError(t, w.Add(path))

	ctx, cancel := context.WithCancel(context.Background())
	handled := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, p string) {
			handled <- p
			cancel()
		})
	}()

	writeFile(t, path, "x = 3")
	select {
	case got := <-handled:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	assert.ErrorIs(t, <-done, context.Canceled)
}
