package governor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

// Artifacts tracks the temporary files of one request.
type Artifacts struct {
	mu    sync.Mutex
	dir   string
	paths []string
	log   logr.Logger

	retries  uint64
	interval time.Duration
}

// ArtifactsOption configures Artifacts.
type ArtifactsOption func(*Artifacts)

// WithArtifactLogger sets the logger used to report removal failures.
func WithArtifactLogger(log logr.Logger) ArtifactsOption {
	return func(a *Artifacts) {
		a.log = log
	}
}

// WithRemoveRetries sets how many times a failed removal is retried and the
// initial delay between attempts.
func WithRemoveRetries(n uint64, initial time.Duration) ArtifactsOption {
	return func(a *Artifacts) {
		a.retries = n
		a.interval = initial
	}
}

// NewArtifacts creates a registry rooted at dir. An empty dir means the
// system temporary directory.
func NewArtifacts(dir string, opts ...ArtifactsOption) *Artifacts {
	if dir == "" {
		dir = os.TempDir()
	}
	a := &Artifacts{
		dir:      dir,
		log:      logr.Discard(),
		retries:  5,
		interval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns dir/name and registers it for cleanup.
func (a *Artifacts) Path(name string) string {
	p := filepath.Join(a.dir, name)
	a.Add(p)
	return p
}

// Add registers paths for cleanup.
func (a *Artifacts) Add(paths ...string) {
	a.mu.Lock()
	a.paths = append(a.paths, paths...)
	a.mu.Unlock()
}

// Paths returns the registered paths.
func (a *Artifacts) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

// Cleanup removes every registered path. Missing files are not an error.
// Failures are retried with exponential backoff, then logged and returned
// joined; callers are expected to ignore the result beyond logging it.
func (a *Artifacts) Cleanup() error {
	a.mu.Lock()
	paths := a.paths
	a.paths = nil
	a.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := a.remove(p); err != nil {
			a.log.Error(err, "artifact not removed", "path", p)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Artifacts) remove(path string) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(a.interval),
		backoff.WithMaxInterval(10*a.interval),
	), a.retries)

	return backoff.Retry(func() error {
		err := os.Remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}, b)
}
