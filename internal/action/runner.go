// Package action runs the external command configured for a trigger.
package action

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-silentjack/internal/metrics"
	"github.com/oszuidwest/zwfm-silentjack/internal/util"
)

// ExitCommand is the reserved single-word command that stops the monitor
// instead of spawning a process.
const ExitCommand = "exit"

// DefaultWaitDelay is how long a timed-out command gets between the
// graceful signal and a kill.
const DefaultWaitDelay = 5 * time.Second

// ErrExitRequested is returned by Run for the reserved exit command.
var ErrExitRequested = errors.New("exit requested by action")

// Runner executes trigger commands one at a time.
type Runner struct {
	// Timeout bounds a single invocation. Zero waits indefinitely.
	Timeout time.Duration
	// WaitDelay is the grace between the stop signal and a kill once Timeout expires.
	WaitDelay time.Duration
	// Stdout and Stderr receive the child's output; nil inherits ours.
	Stdout io.Writer
	Stderr io.Writer

	mu   sync.Mutex
	runs atomic.Int64
}

// NewRunner creates a Runner with the given per-invocation timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{
		Timeout:   timeout,
		WaitDelay: DefaultWaitDelay,
	}
}

// IsExit reports whether argv is the reserved exit command.
func IsExit(argv []string) bool {
	return len(argv) == 1 && argv[0] == ExitCommand
}

// Run starts argv and blocks until it exits. An empty argv does nothing.
// The child's exit status is logged and otherwise ignored; only a failure
// to start is returned.
func (r *Runner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	if IsExit(argv) {
		return ErrExitRequested
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = writerOr(r.Stdout, os.Stdout)
	stderr := newTailBuffer(stderrTailSize)
	cmd.Stderr = io.MultiWriter(writerOr(r.Stderr, os.Stderr), stderr)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = r.WaitDelay

	slog.Debug("running command", "argv", argv)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.ActionFailures.Inc()
		return util.WrapError("start command", err)
	}
	r.runs.Add(1)
	metrics.ActionRuns.Inc()

	err := cmd.Wait()
	elapsed := time.Since(start)
	metrics.ActionDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.ActionFailures.Inc()
		slog.Warn("command finished with error",
			"command", argv[0], "error", err, "duration", elapsed.Round(time.Millisecond),
			"timed_out", errors.Is(ctx.Err(), context.DeadlineExceeded),
			"stderr", util.ExtractLastError(stderr.String()))
		return nil
	}

	slog.Debug("command finished", "command", argv[0], "duration", elapsed.Round(time.Millisecond))
	return nil
}

// Runs returns the number of processes started.
func (r *Runner) Runs() int64 {
	return r.runs.Load()
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
