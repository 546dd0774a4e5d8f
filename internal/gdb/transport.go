package gdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MaxLineLength bounds a single line of MI output (10MB).
const MaxLineLength = 10 * 1024 * 1024

// Transport carries MI commands to gdb and output lines back.
type Transport interface {
	// Send writes one command line.
	Send(command string) error

	// Receive returns the next output line without its line terminator.
	Receive() (string, error)

	// Close closes the transport.
	Close() error
}

// StreamTransport implements Transport over a pair of streams, normally the
// standard input and output of a gdb process.
type StreamTransport struct {
	w      io.WriteCloser
	r      io.ReadCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewStreamTransport creates a transport writing commands to w and reading
// output from r.
func NewStreamTransport(w io.WriteCloser, r io.ReadCloser) *StreamTransport {
	return &StreamTransport{
		w:      w,
		r:      r,
		reader: bufio.NewReader(r),
	}
}

// Send writes command followed by a newline.
func (t *StreamTransport) Send(command string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.w, command+"\n"); err != nil {
		return &TransportError{Op: "send " + command, Err: err}
	}
	return nil
}

// Receive reads the next line. A final line without a newline is returned
// before io.EOF.
func (t *StreamTransport) Receive() (string, error) {
	var sb strings.Builder
	for {
		chunk, err := t.reader.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > MaxLineLength {
			return "", fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, MaxLineLength)
		}
		switch {
		case err == nil:
			return strings.TrimRight(sb.String(), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && sb.Len() > 0:
			return sb.String(), nil
		default:
			return "", &TransportError{Op: "receive", Err: err}
		}
	}
}

// Close closes both streams.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return errors.Join(t.w.Close(), t.r.Close())
}
