package daemon

import (
	"context"
	"time"
)

// Monitor checks the tracked daemon every interval until ctx is done. A
// daemon that has died is untracked and a stopped status is published;
// when restart is enabled in the config a new StartOrAdopt follows.
func (s *Supervisor) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("daemon monitor started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("daemon monitor stopped")
			return
		case <-ticker.C:
			s.checkOnce(ctx)
		}
	}
}

func (s *Supervisor) checkOnce(ctx context.Context) {
	tp := s.current()
	if tp == nil || s.procs.IsAlive(tp.pid) {
		return
	}

	s.logger.Warn("daemon process exited", "pid", tp.pid, "spawned", tp.spawned)
	s.untrack(tp.pid)

	opts, _, _ := s.settings()
	if !opts.Restart {
		return
	}

	result, err := s.StartOrAdopt(ctx)
	if err != nil {
		s.logger.Error("failed to restart daemon", "error", err)
		return
	}
	s.logger.Info("daemon restarted", "pid", result.PID, "adopted", result.Adopted)
}
