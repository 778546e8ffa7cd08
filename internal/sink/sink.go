// Package sink persists one output stream of one command invocation to an
// append-only file, teeing to the console and an in-memory buffer on request.
package sink

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Kind identifies which stream of an invocation a sink captures.
type Kind string

const (
	Stdout Kind = "stdout"
	Stderr Kind = "stderr"
	Trace  Kind = "trace"
)

// Options controls optional destinations beyond the stream file.
type Options struct {
	// Echo mirrors every chunk to this writer (typically os.Stdout or
	// os.Stderr). Nil disables echoing.
	Echo io.Writer
	// Capture additionally buffers the stream in memory. Intended for
	// short auxiliary output, not bulk command output.
	Capture bool
}

// Sink is the single writer for one stream file. Bytes are forwarded
// incrementally; the full stream is never held in memory unless Capture
// was requested.
type Sink struct {
	path string
	file *os.File
	echo io.Writer
	buf  *bytes.Buffer

	mu  sync.Mutex
	err error // first file write failure, sticky
}

// Open creates the stream file for the given invocation sequence number and
// stream kind under dir. File names are deterministic: <seq>_<kind>.log. An
// existing file from an earlier run is truncated, so the stream file holds
// exactly this invocation's bytes.
func Open(dir string, seq uint64, kind Kind, opt Options) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%03d_%s.log", seq, kind))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	s := &Sink{path: path, file: f, echo: opt.Echo}
	if opt.Capture {
		s.buf = &bytes.Buffer{}
	}
	return s, nil
}

// Write appends a chunk to every destination. A file write failure is
// recorded and reported via Err, but does not fail the write: the echo and
// capture destinations keep working so the invocation can finish.
func (s *Sink) Write(p []byte) (int, error) {
	if s.file != nil {
		if _, err := s.file.Write(p); err != nil {
			s.mu.Lock()
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
		}
	}
	if s.echo != nil {
		s.echo.Write(p)
	}
	if s.buf != nil {
		s.buf.Write(p)
	}
	return len(p), nil
}

// Err reports the first file write failure, if any.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Path returns the stream file path.
func (s *Sink) Path() string {
	return s.path
}

// Captured returns the in-memory copy of the stream. Empty unless Capture
// was requested at Open time.
func (s *Sink) Captured() string {
	if s.buf == nil {
		return ""
	}
	return s.buf.String()
}

// Close flushes and closes the stream file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
