// Package watch reports edits to source files so that they can be traced
// again.
//
// Editors commonly save by writing a temporary file and renaming it over the
// original, which drops a watch placed on the file itself. The watcher
// therefore watches each file's directory and filters events by name. Bursts
// of events for one file are coalesced into a single change after a short
// quiet period.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// DefaultDelay is the quiet period before a change is reported.
const DefaultDelay = 150 * time.Millisecond

// Watcher reports changes to a set of files.
type Watcher struct {
	mu sync.Mutex

	fsw   *fsnotify.Watcher
	delay time.Duration
	log   logr.Logger

	// files holds the absolute paths of interest; dirs counts files per
	// watched directory.
	files map[string]bool
	dirs  map[string]int

	pending map[string]*time.Timer
	changes chan string
	errors  chan error

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the quiet period.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(w *Watcher) {
		w.log = log
	}
}

// New creates a watcher with no files.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		delay:   DefaultDelay,
		log:     logr.Discard(),
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
		pending: make(map[string]*time.Timer),
		changes: make(chan string, 16),
		errors:  make(chan error, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Add starts reporting changes to the file at path.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrPathNotExist
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return ErrNotRegular
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.files[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Files returns the watched files.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Changes delivers the absolute path of each changed file.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Errors delivers errors from the underlying notifier.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run calls handle for each change until ctx ends or the watcher is closed.
// Calls are sequential; changes arriving meanwhile are coalesced by the
// debounce and handled afterwards.
func (w *Watcher) Run(ctx context.Context, handle func(ctx context.Context, path string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-w.changes:
			if !ok {
				return ErrWatcherClosed
			}
			handle(ctx, path)
		case err, ok := <-w.errors:
			if !ok {
				return ErrWatcherClosed
			}
			w.log.Error(err, "file watch error")
		}
	}
}

// Close stops the watcher and closes its channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	err := w.fsw.Close()

	w.mu.Lock()
	close(w.changes)
	close(w.errors)
	w.mu.Unlock()
	return err
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// handle schedules a change for events that can alter a watched file's
// content. Removal is ignored: the file is reported when it reappears.
func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.files[path] {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.delay)
		return
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.fire(path)
	})
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	delete(w.pending, path)
	select {
	case w.changes <- path:
	default:
		w.log.V(1).Info("change dropped, consumer busy", "path", path)
	}
}
