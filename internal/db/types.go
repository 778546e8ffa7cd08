// Package db durably persists finished command invocation records.
package db

import (
	"time"

	"shellog/internal/runner"
)

// Store interface defines the methods for persistent invocation storage
type Store interface {
	Close() error
	SaveInvocation(inv *runner.Invocation) error
	History(limit int) ([]Record, error)
}

// Record is one persisted invocation row. The full structured record is
// stored as JSON alongside the indexed columns.
type Record struct {
	ID          int64     `json:"id"`
	Seq         uint64    `json:"seq"`
	Command     string    `json:"cmd"`
	Description string    `json:"description"`
	ExitCode    int       `json:"exit_code"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`

	Invocation *runner.Invocation `json:"invocation"`
}
