package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/player"
)

var healthOpts struct {
	format string
}

var errUnhealthy = errors.New("unhealthy")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the daemon process and the player connection",
	Long: `Check that the daemon process is running, that it owns its bus name and
that a player connection can be established. Exits non-zero when any check
fails, so it can be used from scripts and status bars.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().StringVar(&healthOpts.format, "format", formatText,
		"Output format (text, json, yaml)")
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	d := newSupervisor().Probe(ctx)
	status := model.ConnectionStatus{
		DaemonRunning:       d.Running,
		DaemonAuthenticated: d.Authenticated,
	}

	// A single attempt: retrying would only delay the answer.
	opts := cfg.Player
	opts.ConnectAttempts = 1
	c := player.NewController(player.SessionDialer(cfg.Daemon.ServicePrefix, logger), opts, logger)
	if err := c.Connect(ctx); err != nil {
		status.Error = err.Error()
	} else {
		status.PlayerConnected = true
		_ = c.Close()
	}

	if err := printValue(healthOpts.format, status, func() string {
		return formatConnectionStatus(status)
	}); err != nil {
		return err
	}

	if !status.PlayerConnected || !status.DaemonRunning {
		return errUnhealthy
	}
	return nil
}

func formatConnectionStatus(s model.ConnectionStatus) string {
	check := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "FAIL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "daemon running:  %s\n", check(s.DaemonRunning))
	fmt.Fprintf(&b, "bus registered:  %s\n", check(s.DaemonAuthenticated))
	fmt.Fprintf(&b, "player connected: %s", check(s.PlayerConnected))
	if s.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", s.Error)
	}
	return b.String()
}
