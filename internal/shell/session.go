// Package shell owns one long-lived interactive shell subprocess and
// provides exactly-once, in-order execution of command strings against it,
// with reliable exit-status capture via a sentinel protocol.
//
// stdout and stderr are two independent OS pipes drained by two independent
// readers, so each stream's bytes reach its sink in the order the shell
// produced them, but no ordering is defined between the two streams.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
)

var (
	// ErrSessionDead is returned when a command is submitted to a session
	// that already timed out, lost its shell, or was closed.
	ErrSessionDead = errors.New("shell session is dead")
	// ErrShellTerminated is returned when the shell process exits before
	// the sentinel is observed (fatal syntax error, explicit exit).
	ErrShellTerminated = errors.New("shell terminated before completing the command")
	// ErrCommandTimeout is returned when the sentinel is not observed
	// within the submission deadline. The session is torn down.
	ErrCommandTimeout = errors.New("command timed out")
)

// State of a session. Terminal once Dead.
type State int32

const (
	StateIdle State = iota
	StateSubmitting
	StateAwaiting
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateAwaiting:
		return "awaiting-completion"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// sentinelPrefix is combined with a random suffix per submission so the
// token cannot realistically collide with command output.
const sentinelPrefix = "SHELLOG-DONE-"

// killDrainTimeout bounds how long a timed-out submission waits for the
// readers to observe EOF after the shell's process group is killed.
const killDrainTimeout = 500 * time.Millisecond

// Options configure a new session.
type Options struct {
	// Shell is the binary to spawn. Defaults to $SHELL, then /bin/sh.
	Shell string
	// LoginShell passes -l so profile files are sourced.
	LoginShell bool
	// WorkDir is the directory the shell changes to on startup.
	WorkDir string
	Logger  *slog.Logger
}

// Session is one persistent shell process. It is a serially-reusable
// resource: submissions are serialized internally, and shell state (cwd,
// variables, environment) persists across commands by construction.
type Session struct {
	shellPath string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *streamReader
	stderr    *streamReader
	logger    *slog.Logger

	state   atomic.Int32
	mu      sync.Mutex // serializes Submit
	workdir string     // as last observed

	closeOnce sync.Once
}

// New spawns the shell and starts the two pipe readers that live for the
// session's lifetime.
func New(opts Options) (*Session, error) {
	shellPath := opts.Shell
	if shellPath == "" {
		shellPath = os.Getenv("SHELL")
	}
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var args []string
	if opts.LoginShell {
		args = append(args, "-l")
	}
	cmd := exec.Command(shellPath, args...)
	// Own process group so a timeout can kill the shell and everything it
	// spawned, unblocking the pipe readers.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell stdin: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell stdout: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start shell %s: %w", shellPath, err)
	}

	s := &Session{
		shellPath: shellPath,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    newStreamReader("stdout", stdoutPipe),
		stderr:    newStreamReader("stderr", stderrPipe),
		logger:    logger,
	}
	s.state.Store(int32(StateIdle))
	logger.Debug("shell session started", "shell", shellPath, "pid", cmd.Process.Pid, "login", opts.LoginShell)

	if opts.WorkDir != "" {
		if err := s.Cd(context.Background(), opts.WorkDir); err != nil {
			s.Close()
			return nil, err
		}
	} else if wd, err := s.Pwd(context.Background()); err == nil {
		s.workdir = wd
	}
	return s, nil
}

// SubmitOptions tune one submission.
type SubmitOptions struct {
	// Timeout bounds the wait for the sentinel. Zero means no deadline.
	Timeout time.Duration
	// DevNullStdin redirects the command's stdin from /dev/null so
	// commands that read stdin cannot swallow the protocol lines that
	// follow them.
	DevNullStdin bool
}

// Result reports a completed submission.
type Result struct {
	// ExitCode is the command's exit status as reported by the shell.
	// -1 if the command never completed or the status could not be parsed.
	ExitCode int
	Start    time.Time
	Stop     time.Time
}

// Submit writes the command plus the completion sentinels to the shell and
// streams output into the given sinks until both sentinels are observed.
// stdout and stderr bytes are forwarded in produced order per stream; the
// interleaving between the two streams is unspecified.
func (s *Session) Submit(ctx context.Context, command string, stdoutSink, stderrSink io.Writer, opt SubmitOptions) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateDead {
		return Result{ExitCode: -1}, ErrSessionDead
	}
	s.state.Store(int32(StateSubmitting))

	token := sentinelPrefix + uuid.NewString()
	start := time.Now()

	// Register the readers before writing anything so no output byte can
	// race past them.
	outDone := s.stdout.expect(token, stdoutSink)
	errDone := s.stderr.expect(token, stderrSink)

	if err := s.writeSubmission(command, token, opt.DevNullStdin); err != nil {
		s.markDead()
		s.kill()
		return Result{ExitCode: -1, Start: start, Stop: time.Now()}, fmt.Errorf("%w: %v", ErrShellTerminated, err)
	}
	s.state.Store(int32(StateAwaiting))

	var deadline <-chan time.Time
	if opt.Timeout > 0 {
		timer := time.NewTimer(opt.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var exitTrailer string
	var readErr error
	outPending, errPending := true, true
	for outPending || errPending {
		select {
		case r := <-outDone:
			outPending = false
			exitTrailer = r.trailer
			if r.err != nil {
				readErr = r.err
			}
		case r := <-errDone:
			errPending = false
			if r.err != nil {
				readErr = r.err
			}
		case <-deadline:
			s.timeout(outDone, errDone)
			return Result{ExitCode: -1, Start: start, Stop: time.Now()}, fmt.Errorf("%w after %s", ErrCommandTimeout, opt.Timeout)
		case <-ctx.Done():
			s.timeout(outDone, errDone)
			return Result{ExitCode: -1, Start: start, Stop: time.Now()}, fmt.Errorf("%w: %v", ErrCommandTimeout, ctx.Err())
		}
	}
	stop := time.Now()

	if readErr != nil {
		s.markDead()
		return Result{ExitCode: -1, Start: start, Stop: stop}, fmt.Errorf("%w: %v", ErrShellTerminated, readErr)
	}

	s.state.Store(int32(StateIdle))
	return Result{ExitCode: parseExitCode(exitTrailer), Start: start, Stop: stop}, nil
}

// writeSubmission writes the brace-wrapped command (newlines and heredocs
// behave as one statement), captures $? into a shell variable, then emits
// the per-stream sentinels: "<token> <status>" on stdout and "<token>" on
// stderr.
func (s *Session) writeSubmission(command, token string, devNullStdin bool) error {
	var b strings.Builder
	if devNullStdin {
		fmt.Fprintf(&b, "{\n%s\n} </dev/null\n", command)
	} else {
		fmt.Fprintf(&b, "{\n%s\n}\n", command)
	}
	fmt.Fprintf(&b, "__SHELLOG_RC=$?\n")
	fmt.Fprintf(&b, "printf '%s %%s\\n' \"$__SHELLOG_RC\"\n", token)
	fmt.Fprintf(&b, "printf '%s\\n' 1>&2\n", token)

	_, err := io.WriteString(s.stdin, b.String())
	return err
}

// timeout tears the session down: the shell may still be mid-write into a
// pipe, so recovery is unsafe. The whole process group is killed and the
// readers are given a short grace period to flush.
func (s *Session) timeout(outDone, errDone <-chan readResult) {
	s.markDead()
	s.kill()

	drain := time.After(killDrainTimeout)
	outPending, errPending := true, true
	for outPending || errPending {
		select {
		case <-outDone:
			outPending = false
		case <-errDone:
			errPending = false
		case <-drain:
			return
		}
	}
}

// Capture runs a small auxiliary command (pwd, env, umask, ...) through the
// regular protocol, buffering its stdout in memory.
func (s *Session) Capture(ctx context.Context, command string) (string, error) {
	var buf bytes.Buffer
	_, err := s.Submit(ctx, command, &buf, io.Discard, SubmitOptions{DevNullStdin: true})
	return buf.String(), err
}

// Pwd asks the shell for its current working directory and caches the
// observation. Startup noise from profile files may precede the value, so
// the last non-empty line wins.
func (s *Session) Pwd(ctx context.Context) (string, error) {
	out, err := s.Capture(ctx, "pwd")
	if err != nil {
		return "", err
	}
	wd := lastLine(out)
	s.workdir = wd
	return wd, nil
}

// Cd changes the shell's working directory.
func (s *Session) Cd(ctx context.Context, dir string) error {
	if _, err := s.Capture(ctx, "cd "+shellquote.Join(dir)); err != nil {
		return err
	}
	_, err := s.Pwd(ctx)
	return err
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Alive reports whether commands may still be submitted.
func (s *Session) Alive() bool {
	return s.State() != StateDead
}

// Pid returns the shell process id.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// ShellPath returns the shell binary this session runs.
func (s *Session) ShellPath() string {
	return s.shellPath
}

// Workdir returns the working directory as last observed.
func (s *Session) Workdir() string {
	return s.workdir
}

// Close terminates the shell and releases the readers. Safe to call more
// than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.markDead()
		// EOF on stdin makes a healthy shell exit on its own.
		err = s.stdin.Close()
		done := make(chan struct{})
		go func() {
			s.cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(killDrainTimeout):
			s.kill()
			<-done
		}
		s.stdout.close()
		s.stderr.close()
		s.logger.Debug("shell session closed", "pid", s.cmd.Process.Pid)
	})
	return err
}

func (s *Session) markDead() {
	s.state.Store(int32(StateDead))
}

// kill terminates the shell's whole process group so pipe readers are
// guaranteed to unblock even if the shell spawned children.
func (s *Session) kill() {
	if s.cmd.Process == nil {
		return
	}
	syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL)
}

func parseExitCode(trailer string) int {
	code, err := strconv.Atoi(strings.TrimSpace(trailer))
	if err != nil {
		return -1
	}
	return code
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
