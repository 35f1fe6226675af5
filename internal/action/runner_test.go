//go:build !windows

package action

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_EmptyCommandDoesNothing(t *testing.T) {
	r := NewRunner(0)
	require.NoError(t, r.Run(context.Background(), nil))
	assert.Zero(t, r.Runs())
}

func TestRun_ExitCommand(t *testing.T) {
	r := NewRunner(0)
	err := r.Run(context.Background(), []string{"exit"})
	assert.ErrorIs(t, err, ErrExitRequested)
	assert.Zero(t, r.Runs())
}

func TestIsExit(t *testing.T) {
	assert.True(t, IsExit([]string{"exit"}))
	assert.False(t, IsExit([]string{"exit", "0"}))
	assert.False(t, IsExit([]string{"/bin/exit"}))
	assert.False(t, IsExit(nil))
}

func TestRun_ExecutesAndWaits(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	r := NewRunner(0)

	require.NoError(t, r.Run(context.Background(), []string{"sh", "-c", "sleep 0.1; touch " + marker}))

	_, err := os.Stat(marker)
	require.NoError(t, err, "Run must block until the command has finished")
	assert.Equal(t, int64(1), r.Runs())
}

func TestRun_PassesArgumentsAndOutput(t *testing.T) {
	var out bytes.Buffer
	r := NewRunner(0)
	r.Stdout = &out

	require.NoError(t, r.Run(context.Background(), []string{"echo", "dead", "air"}))
	assert.Equal(t, "dead air\n", out.String())
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	r := NewRunner(0)
	require.NoError(t, r.Run(context.Background(), []string{"false"}))
	assert.Equal(t, int64(1), r.Runs())
}

func TestRun_SpawnFailure(t *testing.T) {
	r := NewRunner(0)
	err := r.Run(context.Background(), []string{filepath.Join(t.TempDir(), "does-not-exist")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start command")
	assert.Zero(t, r.Runs())
}

func TestRun_Timeout(t *testing.T) {
	r := NewRunner(100 * time.Millisecond)
	r.WaitDelay = 100 * time.Millisecond

	start := time.Now()
	require.NoError(t, r.Run(context.Background(), []string{"sleep", "10"}))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_NotReentrant(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "lock")
	clash := filepath.Join(dir, "clash")
	script := "if [ -e " + lock + " ]; then touch " + clash + "; fi; touch " + lock + "; sleep 0.1; rm " + lock

	r := NewRunner(0)
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Run(context.Background(), []string{"sh", "-c", script}))
		}()
	}
	wg.Wait()

	_, err := os.Stat(clash)
	assert.True(t, os.IsNotExist(err), "invocations overlapped")
	assert.Equal(t, int64(3), r.Runs())
}

func TestRun_FailingCommandStderrIsForwarded(t *testing.T) {
	var errOut bytes.Buffer
	r := NewRunner(0)
	r.Stderr = &errOut

	require.NoError(t, r.Run(context.Background(), []string{"sh", "-c", "echo first >&2; echo 'switch failed' >&2; exit 3"}))
	assert.Equal(t, "first\nswitch failed\n", errOut.String())
}
