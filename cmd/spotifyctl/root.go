// Package main provides the CLI entrypoint for spotifyctl.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/spotifyctl/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	cfg        *config.Config
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger  *slog.Logger
	logFile *os.File
)

// annotationLogToFile marks commands that own the terminal; their logs go
// to the log file instead of stderr.
const annotationLogToFile = "log-to-file"

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "spotifyctl",
	Short: "Control and supervise a spotifyd player over MPRIS",
	Long: `spotifyctl controls a spotifyd instance over the D-Bus session bus and
supervises its process: it adopts a running daemon when one is healthy, and
otherwise cleans up stale instances and starts a fresh, fully detached one.

Running spotifyctl without a subcommand launches the interactive TUI.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(globalOpts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return setupLogger(cmd)
	},
	Annotations: map[string]string{annotationLogToFile: "true"},
	// Default to TUI when no subcommand is provided
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs the root command with args. Cobra skips post-run hooks when
// a command fails, so the log file is closed here on every path.
func execute(args []string) error {
	defer closeLogFile()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func closeLogFile() {
	if logFile == nil {
		return
	}
	_ = logFile.Close()
	logFile = nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/spotifyctl/config.toml)")
}

// setupLogger configures the global slog logger from the config level,
// raised to debug by --verbose.
func setupLogger(cmd *cobra.Command) error {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	var out io.Writer = os.Stderr
	if cmd.Annotations[annotationLogToFile] == "true" {
		f, err := openLogFile(cfg.LogPath())
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
