package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/spotifyctl/internal/tui"
)

var tuiOpts struct {
	noStart bool
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive now-playing view",
	Long: `Launch the interactive terminal user interface.

The daemon is started or adopted first unless --no-start is given. Logs are
written to the log file (default: ~/.local/state/spotifyctl/spotifyctl.log)
so they do not disturb the display.

Key bindings:
  space       Play/pause
  n/b         Next/previous track
  ←/→         Seek -5s/+5s
  ↑/↓         Volume up/down
  s           Toggle shuffle
  r           Cycle repeat mode
  c           Copy track link to clipboard
  R           Refresh
  ?           Show help
  q           Quit`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationLogToFile: "true"},
	RunE:        runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().BoolVar(&tuiOpts.noStart, "no-start", false,
		"Connect to a running player without starting or adopting the daemon")
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	opts := tui.RunOptions{
		RefreshInterval: cfg.Player.PollInterval.Duration(),
	}

	if !tuiOpts.noStart {
		sup := newSupervisor()
		result, err := sup.StartOrAdopt(ctx)
		if err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
		logger.Info("daemon ready", "pid", result.PID, "adopted", result.Adopted)
		go sup.Monitor(ctx, cfg.Daemon.HealthInterval.Duration())
		opts.Daemon = sup
	}

	c, err := connectPlayer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	opts.Player = c

	return tui.Run(opts)
}
