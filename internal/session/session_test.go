package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineRecorder is a concurrency-safe observer for tests.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) observe(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// writeScript drops an executable shell script into a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fastTimers shrinks the supervision intervals so stall tests finish in
// well under a second per generation.
func fastTimers(s *Session) {
	s.StallBudget = 150 * time.Millisecond
	s.CheckInterval = 25 * time.Millisecond
	s.GracePeriod = 50 * time.Millisecond
}

func waitDone(t *testing.T, s *Session) Result {
	t.Helper()
	select {
	case <-s.Done():
		return s.Result()
	case <-time.After(10 * time.Second):
		t.Fatal("session did not complete")
		return Result{}
	}
}

func TestSession_Success(t *testing.T) {
	script := writeScript(t, `echo one
echo two`)
	rec := &lineRecorder{}

	s := New(Spec{Name: script, CaptureOutput: true}, rec.observe)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Restarts)
	assert.Equal(t, "one\ntwo\n", res.Output)
	assert.Equal(t, []string{"one", "two"}, rec.all())
	assert.Equal(t, StateCompleted, s.State())
}

func TestSession_MergesStderr(t *testing.T) {
	script := writeScript(t, `echo out
echo err 1>&2`)
	rec := &lineRecorder{}

	s := New(Spec{Name: script}, rec.observe)
	require.NoError(t, s.Start(context.Background()))

	waitDone(t, s)
	assert.ElementsMatch(t, []string{"out", "err"}, rec.all())
}

func TestSession_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo failing
exit 3`)

	s := New(Spec{Name: script}, nil)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.False(t, res.Success)
	assert.False(t, res.Canceled)
	assert.False(t, res.TimedOut)
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_SpawnError(t *testing.T) {
	s := New(Spec{Name: filepath.Join(t.TempDir(), "missing-binary")}, nil)

	err := s.Start(context.Background())
	require.Error(t, err)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Contains(t, spawnErr.Command, "missing-binary")
	assert.Equal(t, StateFailed, s.State())
}

// First generation stalls silently; its replacement finds the marker file
// and succeeds. The caller sees one continuous invocation with one restart.
func TestSession_StallRestartThenSuccess(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	script := writeScript(t, `if [ -f `+marker+` ]; then echo recovered; exit 0; fi
touch `+marker+`
sleep 30`)
	rec := &lineRecorder{}

	s := New(Spec{Name: script, StallSensitive: true}, rec.observe)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Restarts)
	assert.Equal(t, []string{"recovered"}, rec.all())
}

// A command that stalls on every generation exhausts the restart budget and
// fails without a further attempt.
func TestSession_StallBudgetExhausted(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	s := New(Spec{Name: script, StallSensitive: true}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.False(t, res.Success)
	assert.Equal(t, MaxRestarts, res.Restarts)
	assert.Equal(t, StateFailed, s.State())
}

// Stall recovery is reserved for the stall-sensitive invocation; a silent
// but ordinary command is simply awaited.
func TestSession_NoRestartWhenNotStallSensitive(t *testing.T) {
	script := writeScript(t, `sleep 0.5
echo done`)

	s := New(Spec{Name: script}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Restarts)
}

func TestSession_Cancel(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	s := New(Spec{Name: script, StallSensitive: true}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	s.Cancel()

	res := waitDone(t, s)
	assert.True(t, res.Canceled)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Restarts, "a canceled session must not restart")
}

func TestSession_CancelIdempotent(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	s := New(Spec{Name: script}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	s.Cancel()
	s.Cancel()

	res := waitDone(t, s)
	assert.True(t, res.Canceled)
}

func TestSession_ContextCancellation(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())

	s := New(Spec{Name: script}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(ctx))

	time.Sleep(50 * time.Millisecond)
	cancel()

	res := waitDone(t, s)
	assert.True(t, res.Canceled)
}

func TestSession_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	s := New(Spec{Name: script, Timeout: 200 * time.Millisecond}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
}

// The timeout spans restart generations: a stall-sensitive command that
// keeps stalling is cut off by the overall deadline, not allowed to burn
// through its full restart budget first.
func TestSession_TimeoutCoversRestarts(t *testing.T) {
	script := writeScript(t, `sleep 30`)

	s := New(Spec{Name: script, StallSensitive: true, Timeout: 250 * time.Millisecond}, nil)
	fastTimers(s)
	require.NoError(t, s.Start(context.Background()))

	res := waitDone(t, s)
	assert.True(t, res.TimedOut)
	assert.Less(t, res.Restarts, MaxRestarts)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "stalled-restarting", StateStalledRestarting.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestSpawnError_Unwrap(t *testing.T) {
	inner := os.ErrNotExist
	err := &SpawnError{Command: "tool", Err: inner}

	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "tool")
}
