package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/spotifyctl/internal/bus"
	"github.com/jmylchreest/spotifyctl/internal/config"
	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/process"
	"github.com/jmylchreest/spotifyctl/internal/watch"
)

// ForegroundFlag keeps spotifyd from forking itself; detaching is done here.
const ForegroundFlag = "--no-daemon"

// trackedProcess is the daemon instance this supervisor knows about.
// spawned records whether termination rights belong to us.
type trackedProcess struct {
	pid     int
	spawned bool
}

// Supervisor owns the daemon's process lifecycle.
type Supervisor struct {
	// startMu serializes StartOrAdopt and Stop.
	startMu sync.Mutex

	mu      sync.RWMutex
	tracked *trackedProcess
	daemon  config.DaemonConfig
	term    *process.Terminator

	discovery *bus.Discovery
	procs     process.Table
	spawner   process.Spawner
	resolver  *BinaryResolver
	status    *watch.Value[model.DaemonStatus]
	logger    *slog.Logger
}

// NewSupervisor creates a Supervisor. Nothing is tracked until
// StartOrAdopt runs.
func NewSupervisor(cfg *config.Config, discovery *bus.Discovery, procs process.Table, spawner process.Spawner, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		discovery: discovery,
		procs:     procs,
		spawner:   spawner,
		resolver:  NewBinaryResolver(),
		status:    watch.NewValue(model.DaemonStatus{}),
		logger:    logger,
	}
	s.applyConfig(cfg)
	return s
}

// SetBinaryResolver replaces the executable lookup.
func (s *Supervisor) SetBinaryResolver(r *BinaryResolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

// UpdateConfig swaps the daemon launch settings and termination timings.
// The running daemon is not restarted; new settings apply to the next
// spawn or stop.
func (s *Supervisor) UpdateConfig(cfg *config.Config) {
	if cfg.Daemon.ServicePrefix != s.discovery.Prefix() {
		s.logger.Warn("service prefix change requires a restart",
			"current", s.discovery.Prefix(),
			"configured", cfg.Daemon.ServicePrefix)
	}
	s.applyConfig(cfg)
	s.logger.Info("supervisor config updated",
		"binary", cfg.Daemon.BinaryPath,
		"device", cfg.Daemon.DeviceName)
}

func (s *Supervisor) applyConfig(cfg *config.Config) {
	term := process.NewTerminator(s.procs, s.logger)
	term.Grace = cfg.Termination.Grace.Duration()
	term.Poll = cfg.Termination.Poll.Duration()
	term.KillWait = cfg.Termination.KillWait.Duration()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemon = cfg.Daemon
	s.daemon.ExtraArgs = append([]string(nil), cfg.Daemon.ExtraArgs...)
	s.term = term
}

func (s *Supervisor) settings() (config.DaemonConfig, *process.Terminator, *BinaryResolver) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.daemon, s.term, s.resolver
}

// StartOrAdopt makes sure a healthy daemon is running. Concurrent callers
// are serialized; each sees the outcome of the sequence before it.
func (s *Supervisor) StartOrAdopt(ctx context.Context) (*model.StartResult, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.logger.Info("starting or adopting daemon")

	if tp := s.current(); tp != nil {
		if s.procs.IsAlive(tp.pid) && s.discovery.IsRegistered(ctx) {
			s.logger.Info("already tracking healthy daemon", "pid", tp.pid)
			return &model.StartResult{
				Success: true,
				Message: "daemon already running",
				PID:     tp.pid,
				Adopted: true,
			}, nil
		}
		s.logger.Info("tracked daemon is stale, clearing", "pid", tp.pid, "spawned", tp.spawned)
		s.untrack(tp.pid)
	}

	if pid, ok := s.findExisting(ctx); ok {
		if s.procs.IsAlive(pid) && s.discovery.IsRegistered(ctx) {
			s.adopt(pid)
			return &model.StartResult{
				Success: true,
				Message: "adopted existing daemon instance",
				PID:     pid,
				Adopted: true,
			}, nil
		}
		s.logger.Warn("existing daemon is not healthy, killing all instances", "pid", pid)
	}

	s.killAll(ctx)

	pid, err := s.startFresh(ctx)
	if err != nil {
		return &model.StartResult{
			Success: false,
			Message: fmt.Sprintf("failed to start daemon: %v", err),
		}, err
	}
	return &model.StartResult{
		Success: true,
		Message: "started fresh daemon instance",
		PID:     pid,
		Adopted: false,
	}, nil
}

// findExisting prefers the bus owner of the service name, which proves
// the process answers the protocol, and falls back to a process scan.
func (s *Supervisor) findExisting(ctx context.Context) (int, bool) {
	pid, err := s.discovery.FindDaemonPID(ctx)
	if err == nil {
		return pid, true
	}
	s.logger.Debug("daemon not found on bus", "error", err)

	opts, _, _ := s.settings()
	pids, err := s.procs.FindByName(opts.BinaryName)
	if err != nil {
		s.logger.Debug("process scan failed", "name", opts.BinaryName, "error", err)
		return 0, false
	}
	if len(pids) == 0 {
		return 0, false
	}
	s.logger.Info("found daemon via process scan", "pid", pids[0], "count", len(pids))
	return pids[0], true
}

func (s *Supervisor) adopt(pid int) {
	s.logger.Info("adopting existing daemon", "pid", pid)

	s.mu.Lock()
	s.tracked = &trackedProcess{pid: pid, spawned: false}
	s.mu.Unlock()

	s.status.Set(model.DaemonStatus{Running: true, PID: pid, Authenticated: true})
}

// killAll terminates every process with the daemon's executable name,
// then rescans once and terminates stragglers.
func (s *Supervisor) killAll(ctx context.Context) {
	opts, term, _ := s.settings()

	if killed := term.TerminateAll(ctx, opts.BinaryName); killed > 0 {
		s.logger.Info("killed existing daemon processes", "count", killed)
		_ = process.Sleep(ctx, opts.KillAllWait.Duration())
	}

	remaining, err := s.procs.FindByName(opts.BinaryName)
	if err != nil || len(remaining) == 0 {
		return
	}
	s.logger.Warn("daemon processes still running after kill", "pids", remaining)
	for _, pid := range remaining {
		term.Terminate(ctx, pid)
	}
	_ = process.Sleep(ctx, opts.StragglerWait.Duration())
}

func (s *Supervisor) startFresh(ctx context.Context) (int, error) {
	opts, _, resolver := s.settings()

	path, err := resolver.Resolve(opts.BinaryPath, opts.BinaryName)
	if err != nil {
		s.logger.Error("daemon binary not found", "name", opts.BinaryName, "error", err)
		return 0, err
	}

	args := BuildArgs(opts)
	s.logger.Info("spawning daemon", "binary", path, "args", args)

	pid, err := s.spawner.Spawn(ctx, path, args)
	if err != nil {
		return 0, model.NewError(model.KindSpawn, "spawn daemon", err)
	}
	s.logger.Info("daemon spawned", "pid", pid)

	s.mu.Lock()
	s.tracked = &trackedProcess{pid: pid, spawned: true}
	s.mu.Unlock()

	if err := process.Sleep(ctx, opts.SettleDelay.Duration()); err != nil {
		s.untrack(pid)
		return 0, model.NewError(model.KindSpawn, "spawn daemon", err)
	}

	if !s.procs.IsAlive(pid) {
		s.untrack(pid)
		return 0, model.Errorf(model.KindExitedEarly, "spawn daemon",
			"daemon %d exited immediately after starting", pid)
	}

	s.status.Set(model.DaemonStatus{Running: true, PID: pid, Authenticated: true})

	attempts := opts.RegistrationAttempts
	interval := opts.RegistrationInterval.Duration()
	if err := s.discovery.WaitForRegistration(ctx, attempts, interval); err != nil {
		s.logger.Warn("daemon bus registration pending",
			"pid", pid,
			"waited", time.Duration(attempts)*interval,
			"error", err)
	}

	return pid, nil
}

// BuildArgs returns the daemon's command line arguments.
func BuildArgs(opts config.DaemonConfig) []string {
	args := []string{ForegroundFlag}
	if opts.DeviceName != "" {
		args = append(args, "--device-name", opts.DeviceName)
	}
	return append(args, opts.ExtraArgs...)
}

// Stop stops the daemon. A tracked daemon is terminated only when we
// spawned it or force is set; with nothing tracked, force terminates any
// discovered instance. Tracking is always cleared and a stopped status
// published. The returned error reports a process that survived
// termination. Stop waits for an in-flight StartOrAdopt to finish.
func (s *Supervisor) Stop(ctx context.Context, force bool) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.logger.Info("stopping daemon", "force", force)

	_, term, _ := s.settings()
	tp := s.current()

	var survivor int
	switch {
	case tp != nil && (force || tp.spawned):
		if !term.Terminate(ctx, tp.pid) {
			survivor = tp.pid
		}
	case tp != nil:
		s.logger.Info("leaving adopted daemon running", "pid", tp.pid)
	case force:
		if pid, ok := s.findExisting(ctx); ok {
			if !term.Terminate(ctx, pid) {
				survivor = pid
			}
		} else {
			s.logger.Info("no daemon instance to stop")
		}
	}

	s.mu.Lock()
	s.tracked = nil
	s.mu.Unlock()
	s.status.Set(model.DaemonStatus{})

	if survivor != 0 {
		return fmt.Errorf("daemon %d still running after termination", survivor)
	}
	s.logger.Info("daemon stopped")
	return nil
}

// current returns a copy of the tracked identity or nil.
func (s *Supervisor) current() *trackedProcess {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tracked == nil {
		return nil
	}
	tp := *s.tracked
	return &tp
}

// clear drops tracking if pid is still the tracked process.
func (s *Supervisor) clear(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracked == nil || s.tracked.pid != pid {
		return false
	}
	s.tracked = nil
	return true
}

// untrack drops tracking of pid and publishes a stopped status.
func (s *Supervisor) untrack(pid int) {
	if s.clear(pid) {
		s.status.Set(model.DaemonStatus{})
	}
}

// TrackedPID returns the tracked pid, or 0.
func (s *Supervisor) TrackedPID() int {
	if tp := s.current(); tp != nil {
		return tp.pid
	}
	return 0
}

// SpawnedPID returns the pid when the tracked daemon was spawned here.
func (s *Supervisor) SpawnedPID() int {
	if tp := s.current(); tp != nil && tp.spawned {
		return tp.pid
	}
	return 0
}

// AdoptedPID returns the pid when the tracked daemon was adopted.
func (s *Supervisor) AdoptedPID() int {
	if tp := s.current(); tp != nil && !tp.spawned {
		return tp.pid
	}
	return 0
}

// IsAlive reports whether the tracked daemon is in the process table.
func (s *Supervisor) IsAlive() bool {
	tp := s.current()
	if tp == nil {
		return false
	}
	alive := s.procs.IsAlive(tp.pid)
	s.logger.Debug("daemon liveness", "pid", tp.pid, "alive", alive)
	return alive
}

// IsHealthy reports whether the tracked daemon is alive and its service
// is registered on the bus.
func (s *Supervisor) IsHealthy(ctx context.Context) bool {
	return s.IsAlive() && s.discovery.IsRegistered(ctx)
}

// Status returns the latest published status.
func (s *Supervisor) Status() model.DaemonStatus {
	return s.status.Get()
}

// SubscribeStatus returns a subscription that only ever holds the latest
// status.
func (s *Supervisor) SubscribeStatus() *watch.ValueSubscription[model.DaemonStatus] {
	return s.status.Subscribe()
}

// Probe reports any daemon instance, tracked or not, without changing
// tracking or the published status. One-shot hosts use it because they
// never track a process of their own.
func (s *Supervisor) Probe(ctx context.Context) model.DaemonStatus {
	pid := s.TrackedPID()
	if pid == 0 || !s.procs.IsAlive(pid) {
		found, ok := s.findExisting(ctx)
		if !ok || !s.procs.IsAlive(found) {
			return model.DaemonStatus{}
		}
		pid = found
	}
	return model.DaemonStatus{
		Running:       true,
		PID:           pid,
		Authenticated: s.discovery.IsRegistered(ctx),
	}
}

// Start runs StartOrAdopt and discards the result.
func (s *Supervisor) Start(ctx context.Context) error {
	_, err := s.StartOrAdopt(ctx)
	return err
}

// CheckHealth is IsHealthy.
func (s *Supervisor) CheckHealth(ctx context.Context) bool {
	return s.IsHealthy(ctx)
}
