package shell

import (
	"bytes"
	"io"
)

// readResult is what a stream reader reports once it has seen the sentinel
// token (or given up because the pipe closed).
type readResult struct {
	// trailer holds the bytes between the token and the following
	// newline. On stdout this carries the command's exit status.
	trailer string
	err     error
}

// readJob asks the reader to forward everything up to the next occurrence of
// token into sink, then report the trailer.
type readJob struct {
	token []byte
	sink  io.Writer
	done  chan readResult
}

// streamReader owns the read end of one shell pipe for the session's entire
// lifetime. Between commands it sits idle waiting for the next job; during a
// command it scans the byte stream for the sentinel token, holding back just
// enough bytes to never emit a token fragment into the sink.
type streamReader struct {
	name    string
	r       io.Reader
	jobs    chan readJob
	buf     []byte
	pending []byte // bytes read past the previous job's sentinel
	err     error  // sticky read failure (EOF = shell gone)
}

func newStreamReader(name string, r io.Reader) *streamReader {
	sr := &streamReader{
		name: name,
		r:    r,
		jobs: make(chan readJob),
		buf:  make([]byte, 4096),
	}
	go sr.run()
	return sr
}

// expect registers interest in the next sentinel occurrence. It must be
// called before the command is written to the shell's stdin so no output can
// race past the reader.
func (sr *streamReader) expect(token string, sink io.Writer) <-chan readResult {
	done := make(chan readResult, 1)
	sr.jobs <- readJob{token: []byte(token), sink: sink, done: done}
	return done
}

// close stops the reader goroutine once the current job (if any) finishes.
func (sr *streamReader) close() {
	close(sr.jobs)
}

func (sr *streamReader) run() {
	for job := range sr.jobs {
		job.done <- sr.scan(job)
	}
}

// scan forwards stream bytes into the job's sink until the token is found,
// then consumes the trailer through the next newline. Bytes after the
// trailer are kept for the following job.
func (sr *streamReader) scan(job readJob) readResult {
	window := append([]byte{}, sr.pending...)
	sr.pending = nil

	for {
		if i := bytes.Index(window, job.token); i >= 0 {
			job.sink.Write(window[:i])
			trailer, leftover := sr.readTrailer(window[i+len(job.token):])
			sr.pending = leftover
			return readResult{trailer: trailer}
		}

		if sr.err != nil {
			// Pipe is gone and no sentinel: flush what we have and
			// report the failure.
			job.sink.Write(window)
			return readResult{err: sr.err}
		}

		// Emit everything that cannot be a prefix of the token.
		hold := len(job.token) - 1
		if hold > len(window) {
			hold = len(window)
		}
		if emit := len(window) - hold; emit > 0 {
			job.sink.Write(window[:emit])
			window = append(window[:0], window[emit:]...)
		}

		n, err := sr.r.Read(sr.buf)
		if n > 0 {
			window = append(window, sr.buf[:n]...)
		}
		if err != nil {
			sr.err = err
		}
	}
}

// readTrailer consumes bytes following the token up to and including the
// next newline, reading more from the pipe if needed.
func (sr *streamReader) readTrailer(rest []byte) (string, []byte) {
	rest = append([]byte{}, rest...)
	for {
		if j := bytes.IndexByte(rest, '\n'); j >= 0 {
			return string(rest[:j]), rest[j+1:]
		}
		if sr.err != nil {
			return string(rest), nil
		}
		n, err := sr.r.Read(sr.buf)
		if n > 0 {
			rest = append(rest, sr.buf[:n]...)
		}
		if err != nil {
			sr.err = err
		}
	}
}
