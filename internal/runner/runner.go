// Package runner sequences the lifecycle of one command invocation: it opens
// the output sinks, starts the sampler and trace supervisors, hands the
// command to the shell session, awaits completion, and assembles the
// structured record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shellog/internal/metrics"
	"shellog/internal/sampler"
	"shellog/internal/shell"
	"shellog/internal/sink"
	"shellog/internal/tracer"
)

// ErrSinkWrite marks an invocation whose output could not be fully
// persisted. The command itself ran; the session remains usable.
var ErrSinkWrite = errors.New("failed to persist output stream")

// Options configure a Runner for the lifetime of its session.
type Options struct {
	// LogDir receives the per-invocation stream files.
	LogDir string
	// Echo mirrors command output to this process's stdout/stderr.
	Echo bool
	// SamplingInterval is the default cadence for resource probes.
	SamplingInterval time.Duration
	// CommandTimeout is the default per-command deadline. Zero disables.
	CommandTimeout time.Duration
	Logger         *slog.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// RunOptions tune a single invocation.
type RunOptions struct {
	// Measure selects resource metrics to sample ("cpu", "memory",
	// "disk"). Empty disables sampling.
	Measure []string
	// Interval overrides the runner's sampling interval.
	Interval time.Duration
	// Timeout overrides the runner's command timeout.
	Timeout time.Duration
	// Trace wraps the command in the named tracer ("strace", "ltrace").
	Trace        string
	TraceOptions tracer.Options
	// DevNullStdin redirects the command's stdin from /dev/null.
	DevNullStdin bool
	// Quiet suppresses console echo for this invocation.
	Quiet bool
}

// Runner executes commands against one shell session, one at a time.
type Runner struct {
	session *shell.Session
	opts    Options
	logger  *slog.Logger

	mu  sync.Mutex // one invocation in flight
	seq uint64
}

// New wires a Runner to an existing session.
func New(session *shell.Session, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LogDir == "" {
		opts.LogDir = "."
	}
	if opts.SamplingInterval <= 0 {
		opts.SamplingInterval = time.Second
	}
	return &Runner{session: session, opts: opts, logger: opts.Logger}
}

// Session exposes the underlying shell session.
func (r *Runner) Session() *shell.Session {
	return r.session
}

// Run executes one command and returns its fully populated record. Exit
// code, duration, and stream file paths are always present on the record;
// sample series and trace references only when requested and collected.
// Session-fatal errors (timeout, shell death) also poison the session.
func (r *Runner) Run(ctx context.Context, command, description string, opt RunOptions) (*Invocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.session.Alive() {
		return nil, shell.ErrSessionDead
	}

	r.seq++
	inv := &Invocation{Seq: r.seq, Command: command, Description: description}
	r.logger.Info("running command", "seq", inv.Seq, "description", description, "cmd", command)

	// Tracer availability is checked before anything is submitted, so a
	// missing binary fails only this invocation.
	submitted := command
	if opt.Trace != "" {
		tr, err := tracer.New(opt.Trace, opt.TraceOptions)
		if err != nil {
			inv.Error = err.Error()
			return inv, err
		}
		if err := tracer.CheckAvailable(tr); err != nil {
			inv.Error = err.Error()
			r.countFailure("tracer_unavailable")
			return inv, err
		}
		inv.TracePath = filepath.Join(r.opts.LogDir, fmt.Sprintf("%03d_%s.log", inv.Seq, sink.Trace))
		submitted = tr.Command(command, inv.TracePath)
	}

	var probes []sampler.Probe
	if len(opt.Measure) > 0 {
		var err error
		probes, err = sampler.Probes(opt.Measure)
		if err != nil {
			inv.Error = err.Error()
			return inv, err
		}
	}

	if err := r.snapshotAuxiliary(ctx, inv); err != nil {
		inv.Error = err.Error()
		return inv, err
	}

	stdoutSink, stderrSink, err := r.openSinks(inv, opt.Quiet)
	if err != nil {
		inv.Error = err.Error()
		return inv, err
	}
	defer stdoutSink.Close()
	defer stderrSink.Close()
	inv.StdoutPath = stdoutSink.Path()
	inv.StderrPath = stderrSink.Path()

	var sup *sampler.Supervisor
	if len(probes) > 0 {
		interval := opt.Interval
		if interval <= 0 {
			interval = r.opts.SamplingInterval
		}
		sup = sampler.Start(interval, probes, r.logger)
	}

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = r.opts.CommandTimeout
	}
	res, submitErr := r.session.Submit(ctx, submitted, stdoutSink, stderrSink,
		shell.SubmitOptions{Timeout: timeout, DevNullStdin: opt.DevNullStdin})

	// Samplers are stopped (and acknowledged) before the record is
	// assembled, so no sample postdates the result.
	if sup != nil {
		inv.Stats = sup.Stop(res.Stop)
	}

	inv.StartMillis = res.Start.UnixMilli()
	inv.StopMillis = res.Stop.UnixMilli()
	inv.DurationMillis = res.Stop.Sub(res.Start).Milliseconds()
	inv.ExitCode = res.ExitCode

	if submitErr != nil {
		inv.Error = submitErr.Error()
		// Output persisted before the failure may itself be incomplete.
		if err := firstSinkErr(stdoutSink, stderrSink); err != nil {
			inv.CaptureError = err.Error()
		}
		switch {
		case errors.Is(submitErr, shell.ErrCommandTimeout):
			r.countFailure("timeout")
		case errors.Is(submitErr, shell.ErrShellTerminated):
			r.countFailure("shell_terminated")
		default:
			r.countFailure("error")
		}
		r.logger.Error("command failed", "seq", inv.Seq, "error", submitErr)
		return inv, submitErr
	}

	// Observe the working directory the command may have changed.
	if wd, err := r.session.Pwd(ctx); err == nil {
		r.logger.Debug("observed working directory", "pwd", wd)
	}

	r.recordMetrics(inv)

	if err := firstSinkErr(stdoutSink, stderrSink); err != nil {
		inv.CaptureError = err.Error()
		r.countFailure("sink_write")
		return inv, fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}

	r.logger.Info("command finished", "seq", inv.Seq, "exit_code", inv.ExitCode, "duration_ms", inv.DurationMillis)
	return inv, nil
}

func (r *Runner) openSinks(inv *Invocation, quiet bool) (*sink.Sink, *sink.Sink, error) {
	var echoOut, echoErr io.Writer
	if r.opts.Echo && !quiet {
		echoOut = os.Stdout
		echoErr = os.Stderr
	}
	stdoutSink, err := sink.Open(r.opts.LogDir, inv.Seq, sink.Stdout, sink.Options{Echo: echoOut})
	if err != nil {
		return nil, nil, err
	}
	stderrSink, err := sink.Open(r.opts.LogDir, inv.Seq, sink.Stderr, sink.Options{Echo: echoErr})
	if err != nil {
		stdoutSink.Close()
		return nil, nil, err
	}
	return stdoutSink, stderrSink, nil
}

// snapshotAuxiliary captures the shell's working directory, environment,
// umask, hostname, user, group, and ulimits before the command runs.
func (r *Runner) snapshotAuxiliary(ctx context.Context, inv *Invocation) error {
	wd, err := r.session.Pwd(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot working directory: %w", err)
	}
	inv.WorkingDir = wd
	inv.Shell = r.session.ShellPath()

	for _, aux := range []struct {
		cmd   string
		strip bool
		dst   *string
	}{
		{"env", false, &inv.Environment},
		{"umask", true, &inv.Umask},
		{"hostname", true, &inv.Hostname},
		{"whoami", true, &inv.User},
		{"id -gn", true, &inv.Group},
		{"ulimit -a", false, &inv.Ulimit},
	} {
		out, err := r.session.Capture(ctx, aux.cmd)
		if err != nil {
			return fmt.Errorf("failed to snapshot %q: %w", aux.cmd, err)
		}
		if aux.strip {
			out = lastNonEmptyLine(out)
		}
		*aux.dst = out
	}
	return nil
}

func (r *Runner) recordMetrics(inv *Invocation) {
	if r.opts.Metrics == nil {
		return
	}
	r.opts.Metrics.CommandsTotal.WithLabelValues(exitStatusLabel(inv.ExitCode)).Inc()
	r.opts.Metrics.CommandDuration.Observe(inv.Duration().Seconds())
	for name, samples := range inv.Stats {
		r.opts.Metrics.SamplesCollected.WithLabelValues(name).Add(float64(len(samples)))
	}
}

func (r *Runner) countFailure(reason string) {
	if r.opts.Metrics == nil {
		return
	}
	r.opts.Metrics.CommandFailures.WithLabelValues(reason).Inc()
}

func exitStatusLabel(code int) string {
	if code == 0 {
		return "ok"
	}
	return "nonzero"
}

func firstSinkErr(sinks ...*sink.Sink) error {
	for _, s := range sinks {
		if err := s.Err(); err != nil {
			return err
		}
	}
	return nil
}

// lastNonEmptyLine strips startup noise (login-shell profiles may print
// banners) so single-value auxiliary commands yield just their value.
func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
