package daemon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jmylchreest/spotifyctl/internal/bus"
	"github.com/jmylchreest/spotifyctl/internal/config"
)

const testService = "org.mpris.MediaPlayer2.spotifyd.instance"

// fakeSystem is a process table, bus and spawner sharing one view of the
// world.
type fakeSystem struct {
	mu sync.Mutex

	alive    map[int]bool
	names    map[int]string
	services map[string]int
	nextPID  int

	spawns   []spawnCall
	signals  map[int][]unix.Signal
	stubborn map[int]bool

	// spawn behaviour
	spawnErr        error
	exitEarly       bool
	registerOnSpawn bool

	// spawnGate, when set, holds Spawn until closed; spawnStarted is
	// signalled as each Spawn reaches the gate.
	spawnGate    chan struct{}
	spawnStarted chan struct{}
}

type spawnCall struct {
	path string
	args []string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		alive:           make(map[int]bool),
		names:           make(map[int]string),
		services:        make(map[string]int),
		signals:         make(map[int][]unix.Signal),
		stubborn:        make(map[int]bool),
		nextPID:         5000,
		registerOnSpawn: true,
	}
}

// run adds a live process, optionally owning a bus name.
func (f *fakeSystem) run(pid int, name string, registered bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
	f.names[pid] = name
	if registered {
		f.services[fmt.Sprintf("%s%d", testService, pid)] = pid
	}
}

func (f *fakeSystem) die(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kill(pid)
}

func (f *fakeSystem) kill(pid int) {
	f.alive[pid] = false
	for name, owner := range f.services {
		if owner == pid {
			delete(f.services, name)
		}
	}
}

func (f *fakeSystem) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.spawns)
}

func (f *fakeSystem) signalsFor(pid int) []unix.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]unix.Signal(nil), f.signals[pid]...)
}

// bus.NameLister

func (f *fakeSystem) ListNames(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := []string{"org.freedesktop.DBus"}
	for name := range f.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeSystem) ConnectionPID(_ context.Context, name string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pid, ok := f.services[name]
	if !ok {
		return 0, errors.New("name has no owner")
	}
	return uint32(pid), nil
}

// process.Table

func (f *fakeSystem) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeSystem) FindByName(name string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pids []int
	for pid, n := range f.names {
		if n == name && f.alive[pid] {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

func (f *fakeSystem) Signal(pid int, sig unix.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals[pid] = append(f.signals[pid], sig)
	if !f.stubborn[pid] {
		f.kill(pid)
	}
	return nil
}

// process.Spawner

func (f *fakeSystem) Spawn(_ context.Context, path string, args []string) (int, error) {
	if f.spawnGate != nil {
		f.spawnStarted <- struct{}{}
		<-f.spawnGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns = append(f.spawns, spawnCall{path: path, args: args})
	if f.spawnErr != nil {
		return 0, f.spawnErr
	}
	f.nextPID++
	pid := f.nextPID
	f.names[pid] = "spotifyd"
	f.alive[pid] = !f.exitEarly
	if f.registerOnSpawn && !f.exitEarly {
		f.services[fmt.Sprintf("%s%d", testService, pid)] = pid
	}
	return pid, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Daemon.SettleDelay = config.Duration(time.Millisecond)
	cfg.Daemon.RegistrationAttempts = 3
	cfg.Daemon.RegistrationInterval = config.Duration(time.Millisecond)
	cfg.Daemon.KillAllWait = config.Duration(time.Millisecond)
	cfg.Daemon.StragglerWait = config.Duration(time.Millisecond)
	cfg.Termination.Grace = config.Duration(5 * time.Millisecond)
	cfg.Termination.Poll = config.Duration(time.Millisecond)
	cfg.Termination.KillWait = config.Duration(time.Millisecond)
	return cfg
}

func newTestSupervisor(sys *fakeSystem, cfg *config.Config) *Supervisor {
	if cfg == nil {
		cfg = testConfig()
	}
	discovery := bus.NewDiscovery(sys, cfg.Daemon.ServicePrefix, nil)
	s := NewSupervisor(cfg, discovery, sys, sys, nil)
	s.SetBinaryResolver(&BinaryResolver{
		Getenv:   func(string) string { return "" },
		LookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
	})
	return s
}
