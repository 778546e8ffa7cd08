// Package tracer wraps a command line in a syscall or library-call tracer
// before it is handed to the shell.
package tracer

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/kballard/go-shellquote"
)

// ErrUnavailable indicates the requested tracer binary is not installed on
// this host.
var ErrUnavailable = errors.New("tracer unavailable")

// Tracer rewrites a command so it runs under a tracing tool. The tracer's
// own output is redirected to a dedicated file; the command's stdout/stderr
// stay untouched.
type Tracer interface {
	// Name is the tracer binary ("strace", "ltrace").
	Name() string
	// Command returns the full command line that traces cmd, writing the
	// trace to outputPath.
	Command(cmd, outputPath string) string
}

// Options tune the tracer invocation.
type Options struct {
	// Summary requests an aggregate report (-c) instead of a full trace.
	Summary bool
	// Expression restricts what is traced (passed to -e).
	Expression string
}

// New returns the tracer with the given name.
func New(name string, opt Options) (Tracer, error) {
	switch name {
	case "strace":
		return &STrace{opt: opt}, nil
	case "ltrace":
		return &LTrace{opt: opt}, nil
	default:
		return nil, fmt.Errorf("unsupported tracer %q (supported: strace, ltrace)", name)
	}
}

// CheckAvailable verifies the tracer binary exists on PATH. Called before
// submission so a missing tracer fails the invocation, not the session.
func CheckAvailable(tr Tracer) error {
	if _, err := exec.LookPath(tr.Name()); err != nil {
		return fmt.Errorf("%w: %s not found on PATH", ErrUnavailable, tr.Name())
	}
	return nil
}

// STrace traces system calls via strace.
type STrace struct {
	opt Options
}

func (t *STrace) Name() string { return "strace" }

func (t *STrace) Command(cmd, outputPath string) string {
	args := fmt.Sprintf("strace -f -o %s", shellquote.Join(outputPath))
	if t.opt.Summary {
		args += " -c"
	}
	if t.opt.Expression != "" {
		args += fmt.Sprintf(" -e %s", shellquote.Join(t.opt.Expression))
	}
	return fmt.Sprintf("%s -- %s", args, cmd)
}

// LTrace traces library calls via ltrace.
type LTrace struct {
	opt Options
}

func (t *LTrace) Name() string { return "ltrace" }

func (t *LTrace) Command(cmd, outputPath string) string {
	args := fmt.Sprintf("ltrace -C -f -o %s", shellquote.Join(outputPath))
	if t.opt.Summary {
		args += " -c"
	}
	if t.opt.Expression != "" {
		args += fmt.Sprintf(" -e %s", shellquote.Join(t.opt.Expression))
	}
	return fmt.Sprintf("%s -- %s", args, cmd)
}
