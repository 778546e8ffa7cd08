package runner

import (
	"time"

	"shellog/internal/sampler"
)

// Invocation is the structured record of one command run. It is assembled by
// the Runner once the command completes and is immutable afterwards; it is
// the sole hand-off artifact to reporting and storage layers.
type Invocation struct {
	Seq         uint64 `json:"seq"`
	Command     string `json:"cmd"`
	Description string `json:"description"`

	StartMillis    int64 `json:"start_ms"`
	StopMillis     int64 `json:"stop_ms"`
	DurationMillis int64 `json:"duration_ms"`
	ExitCode       int   `json:"exit_code"`

	// Environment snapshot taken just before submission.
	WorkingDir  string `json:"pwd"`
	Environment string `json:"environment"`
	Hostname    string `json:"hostname"`
	User        string `json:"user"`
	Group       string `json:"group"`
	Shell       string `json:"shell"`
	Umask       string `json:"umask"`
	Ulimit      string `json:"ulimit"`

	StdoutPath string `json:"stdout_path"`
	StderrPath string `json:"stderr_path"`
	TracePath  string `json:"trace_path,omitempty"`

	Stats sampler.Series `json:"stats,omitempty"`

	// Error carries the invocation-fatal condition (timeout, shell death,
	// tracer unavailable), CaptureError a non-fatal stream persistence
	// failure. Empty means clean.
	Error        string `json:"error,omitempty"`
	CaptureError string `json:"capture_error,omitempty"`
}

// Duration returns the command's wall-clock duration.
func (inv *Invocation) Duration() time.Duration {
	return time.Duration(inv.DurationMillis) * time.Millisecond
}

// Start returns the submission time.
func (inv *Invocation) Start() time.Time {
	return time.UnixMilli(inv.StartMillis)
}

// Stop returns the completion time.
func (inv *Invocation) Stop() time.Time {
	return time.UnixMilli(inv.StopMillis)
}
