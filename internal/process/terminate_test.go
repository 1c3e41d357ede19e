package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

// fakeTable simulates processes that react to signals.
type fakeTable struct {
	mu      sync.Mutex
	alive   map[int]bool
	names   map[int]string
	signals []unix.Signal
	// ignoreTerm keeps a pid alive after SIGTERM.
	ignoreTerm map[int]bool
	// unkillable keeps a pid alive after SIGKILL too.
	unkillable map[int]bool
	// signalErr is returned by Signal for a pid.
	signalErr map[int]error
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		alive:      make(map[int]bool),
		names:      make(map[int]string),
		ignoreTerm: make(map[int]bool),
		unkillable: make(map[int]bool),
		signalErr:  make(map[int]error),
	}
}

func (f *fakeTable) add(pid int, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
	f.names[pid] = name
}

func (f *fakeTable) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeTable) FindByName(name string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pids []int
	for pid, n := range f.names {
		if n == name && f.alive[pid] {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (f *fakeTable) Signal(pid int, sig unix.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	if err := f.signalErr[pid]; err != nil {
		if errors.Is(err, unix.ESRCH) {
			f.alive[pid] = false
		}
		return err
	}
	switch sig {
	case unix.SIGTERM:
		if !f.ignoreTerm[pid] && !f.unkillable[pid] {
			f.alive[pid] = false
		}
	case unix.SIGKILL:
		if !f.unkillable[pid] {
			f.alive[pid] = false
		}
	}
	return nil
}

func (f *fakeTable) sent() []unix.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]unix.Signal(nil), f.signals...)
}

func fastTerminator(table Table) *Terminator {
	term := NewTerminator(table, nil)
	term.Grace = 20 * time.Millisecond
	term.Poll = 5 * time.Millisecond
	term.KillWait = time.Millisecond
	return term
}

func TestTerminator_Terminate(t *testing.T) {
	ctx := context.Background()

	t.Run("exits on SIGTERM", func(t *testing.T) {
		table := newFakeTable()
		table.add(10, "spotifyd")
		assert.True(t, fastTerminator(table).Terminate(ctx, 10))
		assert.Equal(t, []unix.Signal{unix.SIGTERM}, table.sent())
	})

	t.Run("escalates to SIGKILL", func(t *testing.T) {
		table := newFakeTable()
		table.add(11, "spotifyd")
		table.ignoreTerm[11] = true
		assert.True(t, fastTerminator(table).Terminate(ctx, 11))
		assert.Equal(t, []unix.Signal{unix.SIGTERM, unix.SIGKILL}, table.sent())
	})

	t.Run("survivor reports failure", func(t *testing.T) {
		table := newFakeTable()
		table.add(12, "spotifyd")
		table.unkillable[12] = true
		assert.False(t, fastTerminator(table).Terminate(ctx, 12))
		assert.True(t, table.IsAlive(12))
	})

	t.Run("already gone", func(t *testing.T) {
		table := newFakeTable()
		assert.True(t, fastTerminator(table).Terminate(ctx, 13))
		assert.Empty(t, table.sent())
	})
}

func TestTerminator_SignalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "permission denied", err: fmt.Errorf("failed to send SIGTERM to 30: %w", unix.EPERM), want: false},
		{name: "exited before signal", err: fmt.Errorf("failed to send SIGTERM to 30: %w", unix.ESRCH), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := newFakeTable()
			table.add(30, "spotifyd")
			table.signalErr[30] = tt.err

			term := fastTerminator(table)
			term.Grace = 10 * time.Second
			start := time.Now()
			assert.Equal(t, tt.want, term.Terminate(context.Background(), 30))
			assert.Less(t, time.Since(start), time.Second, "must not wait out the grace period")
			assert.Equal(t, []unix.Signal{unix.SIGTERM}, table.sent())
		})
	}
}

func TestTerminator_GraceBudget(t *testing.T) {
	table := newFakeTable()
	table.add(20, "spotifyd")
	table.ignoreTerm[20] = true

	term := fastTerminator(table)
	term.Grace = 50 * time.Millisecond
	start := time.Now()
	assert.True(t, term.Terminate(context.Background(), 20))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestTerminator_TerminateAll(t *testing.T) {
	table := newFakeTable()
	table.add(1, "spotifyd")
	table.add(2, "spotifyd")
	table.add(3, "other")

	n := fastTerminator(table).TerminateAll(context.Background(), "spotifyd")
	assert.Equal(t, 2, n)
	assert.False(t, table.IsAlive(1))
	assert.False(t, table.IsAlive(2))
	assert.True(t, table.IsAlive(3))

	assert.Equal(t, 0, fastTerminator(table).TerminateAll(context.Background(), "spotifyd"))
}
