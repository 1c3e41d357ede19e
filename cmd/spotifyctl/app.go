package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/spotifyctl/internal/bus"
	"github.com/jmylchreest/spotifyctl/internal/daemon"
	"github.com/jmylchreest/spotifyctl/internal/player"
	"github.com/jmylchreest/spotifyctl/internal/process"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
}

func newSupervisor() *daemon.Supervisor {
	discovery := bus.NewDiscovery(bus.SessionLister{}, cfg.Daemon.ServicePrefix, logger)
	return daemon.NewSupervisor(cfg, discovery, process.NewProcFS(), process.NewDetacher(), logger)
}

func newController() *player.Controller {
	return player.NewController(
		player.SessionDialer(cfg.Daemon.ServicePrefix, logger),
		cfg.Player,
		logger,
	)
}

// connectPlayer returns a connected controller. Callers must Close it.
func connectPlayer(ctx context.Context) (*player.Controller, error) {
	c := newController()
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to player: %w", err)
	}
	return c, nil
}

// printValue writes v to stdout in the requested format. Text output uses
// the supplied renderer.
func printValue(format string, v any, text func() string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatText, "":
		fmt.Println(text())
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use text, json or yaml)", format)
	}
}
