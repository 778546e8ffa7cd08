package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Options{Shell: "/bin/sh"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func submit(t *testing.T, s *Session, command string, opt SubmitOptions) (Result, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	res, err := s.Submit(context.Background(), command, &stdout, &stderr, opt)
	require.NoError(t, err)
	return res, stdout.String(), stderr.String()
}

func TestSubmit_HelloWorld(t *testing.T) {
	s := newTestSession(t)

	res, stdout, stderr := submit(t, s, "printf 'hello\\n'", SubmitOptions{})

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", stdout)
	assert.Empty(t, stderr)
	assert.True(t, res.Stop.After(res.Start))
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmit_ExitCode(t *testing.T) {
	s := newTestSession(t)

	res, _, _ := submit(t, s, "sh -c 'exit 7'", SubmitOptions{})
	assert.Equal(t, 7, res.ExitCode)

	res, _, _ = submit(t, s, "false", SubmitOptions{})
	assert.Equal(t, 1, res.ExitCode)

	// The session survives failing commands.
	res, stdout, _ := submit(t, s, "echo ok", SubmitOptions{})
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "ok\n", stdout)
}

func TestSubmit_StderrSeparated(t *testing.T) {
	s := newTestSession(t)

	_, stdout, stderr := submit(t, s, "echo out; echo err 1>&2", SubmitOptions{})

	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)
}

func TestSubmit_NoTrailingNewline(t *testing.T) {
	s := newTestSession(t)

	_, stdout, _ := submit(t, s, "printf abc", SubmitOptions{})
	assert.Equal(t, "abc", stdout, "captured bytes must match the command's output exactly")
}

func TestSubmit_BinaryOutput(t *testing.T) {
	s := newTestSession(t)

	var stdout bytes.Buffer
	_, err := s.Submit(context.Background(), `printf '\000\001\002'`, &stdout, io.Discard, SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, stdout.Bytes())
}

func TestSubmit_OutputResemblingSentinel(t *testing.T) {
	s := newTestSession(t)

	// The fixed prefix alone must pass through; only prefix+random suffix
	// terminates the read loop.
	_, stdout, _ := submit(t, s, "printf '"+sentinelPrefix+"'", SubmitOptions{})
	assert.Equal(t, sentinelPrefix, stdout)
}

func TestSubmit_LongLines(t *testing.T) {
	s := newTestSession(t)

	// A line well beyond the reader's chunk size.
	_, stdout, _ := submit(t, s, "printf 'x%.0s' $(seq 1 20000); echo", SubmitOptions{})
	require.Len(t, stdout, 20001)
}

func TestSubmit_StatePersistsAcrossCommands(t *testing.T) {
	s := newTestSession(t)
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	submit(t, s, "cd "+dir, SubmitOptions{})
	_, stdout, _ := submit(t, s, "pwd", SubmitOptions{})
	got, err := filepath.EvalSymlinks(lastLine(stdout))
	require.NoError(t, err)
	assert.Equal(t, resolved, got)

	submit(t, s, "SHELLOG_TEST_VAR=sticky", SubmitOptions{})
	_, stdout, _ = submit(t, s, `printf '%s\n' "$SHELLOG_TEST_VAR"`, SubmitOptions{})
	assert.Equal(t, "sticky\n", stdout)
}

func TestSubmit_IndependentInvocations(t *testing.T) {
	s := newTestSession(t)

	_, first, _ := submit(t, s, "echo one", SubmitOptions{})
	_, second, _ := submit(t, s, "echo two", SubmitOptions{})

	assert.Equal(t, "one\n", first)
	assert.Equal(t, "two\n", second, "no cross-contamination between invocations")
}

func TestSubmit_MultilineAndHeredoc(t *testing.T) {
	s := newTestSession(t)

	_, stdout, _ := submit(t, s, "cat <<'EOF'\nline one\nline two\nEOF", SubmitOptions{})
	assert.Equal(t, "line one\nline two\n", stdout)
}

func TestSubmit_DevNullStdin(t *testing.T) {
	s := newTestSession(t)

	// Without the redirection, cat would swallow the protocol lines.
	res, stdout, _ := submit(t, s, "cat", SubmitOptions{DevNullStdin: true})
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, stdout)

	res, stdout, _ = submit(t, s, "echo still-alive", SubmitOptions{})
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "still-alive\n", stdout)
}

func TestSubmit_Timeout(t *testing.T) {
	s := newTestSession(t)

	start := time.Now()
	res, err := s.Submit(context.Background(), "sleep 999999", io.Discard, io.Discard,
		SubmitOptions{Timeout: 500 * time.Millisecond})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandTimeout))
	assert.Equal(t, -1, res.ExitCode, "an unfinished command must not report success")
	assert.Less(t, elapsed, 2*time.Second, "timeout overrun must be bounded")
	assert.Equal(t, StateDead, s.State())

	_, err = s.Submit(context.Background(), "echo nope", io.Discard, io.Discard, SubmitOptions{})
	assert.True(t, errors.Is(err, ErrSessionDead))
}

func TestSubmit_ShellExit(t *testing.T) {
	s := newTestSession(t)

	res, err := s.Submit(context.Background(), "exit 0", io.Discard, io.Discard, SubmitOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShellTerminated))
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, StateDead, s.State())

	_, err = s.Submit(context.Background(), "echo nope", io.Discard, io.Discard, SubmitOptions{})
	assert.True(t, errors.Is(err, ErrSessionDead))
}

func TestSubmit_SyntaxErrorKillsShell(t *testing.T) {
	s := newTestSession(t)

	// A non-interactive shell exits on a syntax error.
	_, err := s.Submit(context.Background(), ")", io.Discard, io.Discard,
		SubmitOptions{Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShellTerminated) || errors.Is(err, ErrCommandTimeout))
	assert.False(t, s.Alive())
}

func TestCaptureAndPwd(t *testing.T) {
	s := newTestSession(t)

	out, err := s.Capture(context.Background(), "echo captured")
	require.NoError(t, err)
	assert.Equal(t, "captured\n", out)

	wd, err := s.Pwd(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, wd)
	assert.Equal(t, wd, s.Workdir())
}

func TestCd(t *testing.T) {
	s := newTestSession(t)
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	require.NoError(t, s.Cd(context.Background(), dir))
	got, err := filepath.EvalSymlinks(s.Workdir())
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
}

func TestNew_WorkDir(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{Shell: "/bin/sh", WorkDir: dir})
	require.NoError(t, err)
	defer s.Close()

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(s.Workdir())
	require.NoError(t, err)
	assert.Equal(t, resolved, got)
}

func TestClose_Idempotent(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.False(t, s.Alive())
}

func TestSessionMetadata(t *testing.T) {
	s := newTestSession(t)
	assert.Greater(t, s.Pid(), 0)
	assert.Equal(t, "/bin/sh", s.ShellPath())
}
