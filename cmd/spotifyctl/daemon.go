package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/process"
)

var stopOpts struct {
	force bool
}

var statusOpts struct {
	format string
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Adopt a healthy daemon or start a fresh one",
	Long: `Ensure a healthy spotifyd is running.

A daemon that owns the configured bus name is adopted. Otherwise every
process with the daemon's executable name is terminated and a fresh
instance is started, fully detached from this terminal.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Terminate the daemon",
	Long: `Terminate the daemon with SIGTERM, escalating to SIGKILL after the grace
period.

A one-shot invocation never tracks a daemon of its own, so by default any
discovered instance is stopped. With --force=false only a daemon started by
this process would be stopped, which makes the command a no-op.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)

	stopCmd.Flags().BoolVarP(&stopOpts.force, "force", "f", true,
		"Stop instances this process did not start")
	statusCmd.Flags().StringVar(&statusOpts.format, "format", formatText,
		"Output format (text, json, yaml)")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	result, err := newSupervisor().StartOrAdopt(ctx)
	if err != nil {
		if result != nil {
			logger.Debug("start result", "message", result.Message)
		}
		return err
	}

	fmt.Printf("%s (pid %d)\n", result.Message, result.PID)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := newSupervisor().Stop(ctx, stopOpts.force); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	fmt.Println("daemon stopped")
	return nil
}

// daemonReport is the status command's output.
type daemonReport struct {
	model.DaemonStatus `yaml:",inline"`
	Binary             string     `json:"binary" yaml:"binary"`
	ServicePrefix      string     `json:"service_prefix" yaml:"service_prefix"`
	StartedAt          *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	status := newSupervisor().Probe(ctx)
	report := daemonReport{
		DaemonStatus:  status,
		Binary:        cfg.Daemon.BinaryName,
		ServicePrefix: cfg.Daemon.ServicePrefix,
	}
	if status.Running {
		if started, err := process.NewProcFS().StartTime(status.PID); err == nil {
			report.StartedAt = &started
		}
	}

	return printValue(statusOpts.format, report, func() string {
		return formatDaemonReport(report)
	})
}

func formatDaemonReport(r daemonReport) string {
	if !r.Running {
		return fmt.Sprintf("%s: not running", r.Binary)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: running (pid %d", r.Binary, r.PID)
	if r.StartedAt != nil {
		fmt.Fprintf(&b, ", started %s", humanize.Time(*r.StartedAt))
	}
	b.WriteString(")\n")
	if r.Authenticated {
		fmt.Fprintf(&b, "bus: registered under %s", r.ServicePrefix)
	} else {
		fmt.Fprintf(&b, "bus: no name matching %s", r.ServicePrefix)
	}
	return b.String()
}
