package process

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// Default termination timings.
const (
	DefaultGrace    = 2 * time.Second
	DefaultPoll     = 100 * time.Millisecond
	DefaultKillWait = 100 * time.Millisecond
)

// Terminator stops processes with an escalating policy: SIGTERM, poll for
// exit during the grace period, then SIGKILL and one final check.
type Terminator struct {
	Table    Table
	Grace    time.Duration
	Poll     time.Duration
	KillWait time.Duration

	logger *slog.Logger
}

// NewTerminator creates a Terminator with the default timings.
func NewTerminator(table Table, logger *slog.Logger) *Terminator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminator{
		Table:    table,
		Grace:    DefaultGrace,
		Poll:     DefaultPoll,
		KillWait: DefaultKillWait,
		logger:   logger,
	}
}

// Terminate stops pid and reports whether it is confirmed gone. A
// SIGTERM that cannot be delivered (EPERM) fails at once without waiting
// out the grace period.
func (t *Terminator) Terminate(ctx context.Context, pid int) bool {
	if !t.Table.IsAlive(pid) {
		return true
	}

	t.logger.Debug("sending SIGTERM", "pid", pid)
	if err := t.Table.Signal(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return !t.Table.IsAlive(pid)
		}
		t.logger.Warn("failed to send SIGTERM", "pid", pid, "error", err)
		return false
	}

	poll := t.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	for waited := time.Duration(0); waited < t.Grace; waited += poll {
		if err := Sleep(ctx, poll); err != nil {
			return !t.Table.IsAlive(pid)
		}
		if !t.Table.IsAlive(pid) {
			t.logger.Debug("process exited after SIGTERM", "pid", pid, "waited", waited+poll)
			return true
		}
	}

	t.logger.Warn("process ignored SIGTERM, sending SIGKILL", "pid", pid, "grace", t.Grace)
	if err := t.Table.Signal(pid, unix.SIGKILL); err != nil {
		t.logger.Warn("failed to send SIGKILL", "pid", pid, "error", err)
	}
	_ = Sleep(ctx, t.KillWait)

	if t.Table.IsAlive(pid) {
		t.logger.Error("process survived SIGKILL", "pid", pid)
		return false
	}
	return true
}

// TerminateAll terminates every process named name and returns how many
// were found.
func (t *Terminator) TerminateAll(ctx context.Context, name string) int {
	pids, err := t.Table.FindByName(name)
	if err != nil {
		t.logger.Warn("failed to enumerate processes", "name", name, "error", err)
		return 0
	}
	if len(pids) == 0 {
		return 0
	}

	t.logger.Info("terminating existing processes", "name", name, "count", len(pids))
	for _, pid := range pids {
		if !t.Terminate(ctx, pid) {
			t.logger.Warn("process still alive after termination", "name", name, "pid", pid)
		}
	}
	return len(pids)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
