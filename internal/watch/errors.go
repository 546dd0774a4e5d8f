package watch

import "errors"

// Errors returned by the watcher.
var (
	// ErrWatcherClosed is returned when adding a file to a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrPathNotExist is returned when the file to watch does not exist.
	ErrPathNotExist = errors.New("path does not exist")

	// ErrNotRegular is returned for directories and other non-regular files.
	ErrNotRegular = errors.New("not a regular file")
)
