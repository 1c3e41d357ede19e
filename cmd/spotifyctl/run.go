package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/spotifyctl/internal/bus"
	"github.com/jmylchreest/spotifyctl/internal/config"
	"github.com/jmylchreest/spotifyctl/internal/daemon"
	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/player"
)

var runOpts struct {
	stopOnExit bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Supervise the daemon in the foreground",
	Long: `Start or adopt the daemon, then keep it healthy until interrupted.

While running, spotifyctl:
  - checks the daemon every health_interval and restarts it when it dies
    (if restart is enabled)
  - reloads the config file when it changes
  - keeps a player connection open and logs track changes
  - sends desktop notifications when [notify] enabled = true

With --stop-on-exit, a daemon started by this process is stopped on exit.
An adopted daemon is always left running.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOpts.stopOnExit, "stop-on-exit", false,
		"Stop the daemon on exit if this process started it")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	sup := newSupervisor()
	result, err := sup.StartOrAdopt(ctx)
	if err != nil {
		return err
	}
	logger.Info("daemon ready", "pid", result.PID, "adopted", result.Adopted, "message", result.Message)

	notifier := daemon.NewNotifier(bus.SessionNotify, logger)
	notifier.ApplyConfig(cfg.Notify)
	notifier.NotifyDaemonStarted(ctx, result)

	watcher := daemon.NewConfigWatcher(globalOpts.configPath, logger)
	watcher.SetReloadCallback(func(newConfig *config.Config) {
		logger.Info("config reloaded")
		sup.UpdateConfig(newConfig)
		notifier.ApplyConfig(newConfig.Notify)
		notifier.NotifyConfigReloaded(ctx)
	})
	watcher.SetErrorCallback(func(err error) {
		logger.Warn("config reload failed, keeping previous config", "error", err)
		notifier.NotifyConfigError(ctx, err)
	})
	if err := watcher.Start(ctx, cfg); err != nil {
		logger.Warn("failed to watch config file", "error", err)
	} else {
		defer watcher.Stop()
	}

	go sup.Monitor(ctx, cfg.Daemon.HealthInterval.Duration())

	c := newController()
	defer func() { _ = c.Close() }()
	connect(ctx, c)
	go logTracks(ctx, c, notifier)
	if interval := cfg.Player.PollInterval.Duration(); interval > 0 {
		go c.Poll(ctx, interval)
	}

	statusSub := sup.SubscribeStatus()
	defer statusSub.Close()

	lastPID := result.PID
	for {
		select {
		case <-ctx.Done():
			return shutdown(sup)
		case <-statusSub.Changed:
			status := statusSub.Get()
			logger.Info("daemon status changed",
				"running", status.Running,
				"pid", status.PID,
				"authenticated", status.Authenticated)
			switch {
			case !status.Running:
				notifier.NotifyDaemonStopped(ctx, lastPID)
			case status.PID != lastPID:
				lastPID = status.PID
				notifier.NotifyDaemonRestarted(ctx, status.PID)
				go connect(ctx, c)
			}
		}
	}
}

// connect binds c to the current player. Reconnecting replaces the
// previous connection.
func connect(ctx context.Context, c *player.Controller) {
	if err := c.Connect(ctx); err != nil {
		logger.Warn("player not available", "error", err)
		return
	}
	logger.Info("player connected", "service", c.Service())
}

// logTracks logs and announces every track change until ctx is done.
func logTracks(ctx context.Context, c *player.Controller, notifier *daemon.Notifier) {
	sub := c.Subscribe()
	defer sub.Close()

	var lastTrack string
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sub.C:
			if !ok {
				return
			}
			if track := describeTrack(s); track != lastTrack {
				lastTrack = track
				logger.Info("now playing", "track", track, "playing", s.IsPlaying)
				notifier.NotifyNowPlaying(ctx, s.Track)
			}
		}
	}
}

func describeTrack(s model.PlaybackSnapshot) string {
	if s.Track == nil {
		return ""
	}
	return fmt.Sprintf("%s - %s", s.Track.Artist, s.Track.Title)
}

// shutdown stops a daemon this process started when asked to. The signal
// context is already cancelled, so termination gets its own deadline.
func shutdown(sup *daemon.Supervisor) error {
	if !runOpts.stopOnExit {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sup.Stop(ctx, false)
}
