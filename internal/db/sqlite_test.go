package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellog/internal/runner"
	"shellog/internal/sampler"
)

func testInvocation(seq uint64, cmd string) *runner.Invocation {
	now := time.Now().UnixMilli()
	return &runner.Invocation{
		Seq:            seq,
		Command:        cmd,
		Description:    "test command",
		StartMillis:    now,
		StopMillis:     now + 42,
		DurationMillis: 42,
		ExitCode:       0,
		WorkingDir:     "/tmp",
		Hostname:       "testhost",
		User:           "tester",
		StdoutPath:     "001_stdout.log",
		StderrPath:     "001_stderr.log",
		Stats: sampler.Series{
			"cpu": {{Timestamp: now, Value: 12.5}},
		},
	}
}

func TestSQLiteStore_SaveAndHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveInvocation(testInvocation(1, "echo one")))
	require.NoError(t, store.SaveInvocation(testInvocation(2, "echo two")))

	history, err := store.History(10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first
	assert.Equal(t, "echo two", history[0].Command)
	assert.Equal(t, "echo one", history[1].Command)
	assert.Equal(t, uint64(2), history[0].Seq)

	// The full structured record round-trips
	require.NotNil(t, history[0].Invocation)
	assert.Equal(t, "test command", history[0].Invocation.Description)
	assert.Equal(t, "/tmp", history[0].Invocation.WorkingDir)
	require.Len(t, history[0].Invocation.Stats["cpu"], 1)
	assert.Equal(t, 12.5, history[0].Invocation.Stats["cpu"][0].Value)
}

func TestSQLiteStore_HistoryLimit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.SaveInvocation(testInvocation(uint64(i), "true")))
	}

	history, err := store.History(3)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	// A directory is not a valid database file.
	_, err := NewSQLiteStore(t.TempDir())
	assert.Error(t, err)
}
