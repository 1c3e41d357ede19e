// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// AppName names the configuration, state and data directories.
const AppName = "spotifyctl"

// Default configuration values.
const (
	DefaultBinaryName    = "spotifyd"
	DefaultDeviceName    = "spotifyctl"
	DefaultServicePrefix = "org.mpris.MediaPlayer2.spotifyd"
	DefaultLogLevel      = "info"
)

// Config represents the spotifyctl configuration.
type Config struct {
	Daemon      DaemonConfig      `toml:"daemon"`
	Termination TerminationConfig `toml:"termination"`
	Player      PlayerConfig      `toml:"player"`
	Notify      NotifyConfig      `toml:"notify"`
	Log         LogConfig         `toml:"log"`
}

// DaemonConfig holds the supervised daemon's settings.
type DaemonConfig struct {
	BinaryPath    string   `toml:"binary_path"`    // Explicit executable, overrides every lookup
	BinaryName    string   `toml:"binary_name"`    // Executable name for lookup and process scans
	DeviceName    string   `toml:"device_name"`    // Passed as --device-name; empty omits the flag
	ServicePrefix string   `toml:"service_prefix"` // Well-known bus name prefix
	ExtraArgs     []string `toml:"extra_args"`

	SettleDelay          Duration `toml:"settle_delay"` // Wait after spawn before the liveness check
	RegistrationAttempts int      `toml:"registration_attempts"`
	RegistrationInterval Duration `toml:"registration_interval"`
	KillAllWait          Duration `toml:"kill_all_wait"`  // After terminating existing instances
	StragglerWait        Duration `toml:"straggler_wait"` // After terminating stragglers

	HealthInterval Duration `toml:"health_interval"` // Monitor period for long-running hosts
	Restart        bool     `toml:"restart"`         // Respawn when the monitor finds the daemon gone
}

// TerminationConfig holds the escalating termination timings.
type TerminationConfig struct {
	Grace    Duration `toml:"grace"`
	Poll     Duration `toml:"poll"`
	KillWait Duration `toml:"kill_wait"`
}

// PlayerConfig holds player controller settings.
type PlayerConfig struct {
	ConnectAttempts int      `toml:"connect_attempts"`
	BackoffBase     Duration `toml:"backoff_base"`  // Doubles after each failed attempt
	SettleDelay     Duration `toml:"settle_delay"`  // Wait before re-reading state after a command
	PollInterval    Duration `toml:"poll_interval"` // 0 disables periodic refresh
	Backlog         int      `toml:"backlog"`       // Snapshot subscriber buffer
}

// NotifyConfig holds desktop notification settings for the run command.
type NotifyConfig struct {
	Enabled     bool     `toml:"enabled"`
	NowPlaying  bool     `toml:"now_playing"`  // Announce track changes
	MinInterval Duration `toml:"min_interval"` // Suppress repeats of the same event
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	File  string `toml:"file"`  // Used by interactive commands; empty selects the state dir
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			BinaryName:           DefaultBinaryName,
			DeviceName:           DefaultDeviceName,
			ServicePrefix:        DefaultServicePrefix,
			SettleDelay:          Duration(1500 * time.Millisecond),
			RegistrationAttempts: 30,
			RegistrationInterval: Duration(100 * time.Millisecond),
			KillAllWait:          Duration(300 * time.Millisecond),
			StragglerWait:        Duration(500 * time.Millisecond),
			HealthInterval:       Duration(5 * time.Second),
			Restart:              true,
		},
		Termination: TerminationConfig{
			Grace:    Duration(2 * time.Second),
			Poll:     Duration(100 * time.Millisecond),
			KillWait: Duration(100 * time.Millisecond),
		},
		Player: PlayerConfig{
			ConnectAttempts: 3,
			BackoffBase:     Duration(time.Second),
			SettleDelay:     Duration(50 * time.Millisecond),
			PollInterval:    Duration(time.Second),
			Backlog:         16,
		},
		Notify: NotifyConfig{
			Enabled:     false,
			NowPlaying:  true,
			MinInterval: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// ConfigPath returns the path to the config file under XDG_CONFIG_HOME.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.toml")
}

// StatePath returns the state directory under XDG_STATE_HOME.
func StatePath() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// LogPath returns the log file used by interactive commands.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return expandPath(c.Log.File)
	}
	return filepath.Join(StatePath(), AppName+".log")
}

// BinDir returns the user-local directory for downloaded daemon binaries.
func BinDir() string {
	return filepath.Join(xdg.DataHome, AppName, "bin")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Defaults first, file contents overlay them.
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration atomically to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	d := c.Daemon
	if d.BinaryName == "" {
		return errors.New("binary_name must not be empty")
	}
	if strings.ContainsRune(d.BinaryName, filepath.Separator) {
		return fmt.Errorf("binary_name %q must be a bare name, use binary_path for paths", d.BinaryName)
	}
	if !strings.HasPrefix(d.ServicePrefix, "org.mpris.MediaPlayer2.") {
		return fmt.Errorf("service_prefix %q must start with org.mpris.MediaPlayer2.", d.ServicePrefix)
	}
	if d.RegistrationAttempts < 1 {
		return fmt.Errorf("registration_attempts must be at least 1, got %d", d.RegistrationAttempts)
	}

	for name, v := range map[string]Duration{
		"daemon.settle_delay":          d.SettleDelay,
		"daemon.registration_interval": d.RegistrationInterval,
		"daemon.kill_all_wait":         d.KillAllWait,
		"daemon.straggler_wait":        d.StragglerWait,
		"daemon.health_interval":       d.HealthInterval,
		"termination.kill_wait":        c.Termination.KillWait,
		"player.settle_delay":          c.Player.SettleDelay,
		"player.backoff_base":          c.Player.BackoffBase,
		"player.poll_interval":         c.Player.PollInterval,
		"notify.min_interval":          c.Notify.MinInterval,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, v)
		}
	}
	if c.Termination.Grace <= 0 || c.Termination.Poll <= 0 {
		return fmt.Errorf("termination grace and poll must be positive, got %s and %s",
			c.Termination.Grace, c.Termination.Poll)
	}

	if c.Player.ConnectAttempts < 1 {
		return fmt.Errorf("connect_attempts must be at least 1, got %d", c.Player.ConnectAttempts)
	}
	if c.Player.Backlog < 1 {
		return fmt.Errorf("backlog must be at least 1, got %d", c.Player.Backlog)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", level)
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
