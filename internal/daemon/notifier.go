package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/spotifyctl/internal/bus"
	"github.com/jmylchreest/spotifyctl/internal/config"
	"github.com/jmylchreest/spotifyctl/internal/model"
)

// NotificationLevel indicates the urgency of a notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low urgency).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal urgency).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (critical urgency).
	NotificationLevelError
)

// NotifyFunc delivers a notification and returns the server's id for it.
type NotifyFunc func(ctx context.Context, n bus.Notification) (uint32, error)

// Notifier sends desktop notifications about supervisor and player events.
// Repeats of the same key within the minimum interval are dropped. Keys of
// the form "group:detail" share one notification bubble per group, so a
// new track replaces the previous track's notification.
type Notifier struct {
	mu     sync.Mutex
	logger *slog.Logger
	notify NotifyFunc
	now    func() time.Time

	lastNotifyTime map[string]time.Time
	ids            map[string]uint32 // group -> server id
	minInterval    time.Duration
	enabled        bool
	nowPlaying     bool
}

// NewNotifier creates a Notifier that delivers through notify.
func NewNotifier(notify NotifyFunc, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:         logger,
		notify:         notify,
		now:            time.Now,
		lastNotifyTime: make(map[string]time.Time),
		ids:            make(map[string]uint32),
		minInterval:    5 * time.Second,
		enabled:        true,
		nowPlaying:     true,
	}
}

// ApplyConfig takes the enabled flags and interval from cfg.
func (n *Notifier) ApplyConfig(cfg config.NotifyConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = cfg.Enabled
	n.nowPlaying = cfg.NowPlaying
	n.minInterval = cfg.MinInterval.Duration()
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Notify sends a notification unless it is disabled or rate-limited.
func (n *Notifier) Notify(ctx context.Context, key, summary, body string, level NotificationLevel) {
	group, _, _ := strings.Cut(key, ":")

	n.mu.Lock()
	if !n.enabled || n.notify == nil {
		n.mu.Unlock()
		return
	}
	now := n.now()
	if last, ok := n.lastNotifyTime[key]; ok && now.Sub(last) < n.minInterval {
		n.mu.Unlock()
		n.logger.Debug("notification rate-limited", "key", key, "summary", summary)
		return
	}
	n.lastNotifyTime[key] = now
	replaces := n.ids[group]
	n.mu.Unlock()

	urgency := byte(1)
	icon := "dialog-warning"
	switch level {
	case NotificationLevelInfo:
		urgency = 0
		icon = "dialog-information"
	case NotificationLevelError:
		urgency = 2
		icon = "dialog-error"
	}

	note := bus.Notification{
		AppName:    config.AppName,
		ReplacesID: replaces,
		AppIcon:    icon,
		Summary:    summary,
		Body:       body,
		Hints: map[string]godbus.Variant{
			"urgency":       godbus.MakeVariant(urgency),
			"category":      godbus.MakeVariant("device"),
			"transient":     godbus.MakeVariant(true),
			"desktop-entry": godbus.MakeVariant(config.AppName),
		},
		ExpireTimeout: 5000,
	}

	n.logger.Debug("sending notification", "key", key, "summary", summary, "level", level)
	id, err := n.notify(ctx, note)
	if err != nil {
		n.logger.Debug("notification failed", "key", key, "error", err)
		return
	}

	n.mu.Lock()
	n.ids[group] = id
	n.mu.Unlock()
}

// NotifyNowPlaying announces a track change.
func (n *Notifier) NotifyNowPlaying(ctx context.Context, track *model.TrackInfo) {
	n.mu.Lock()
	want := n.nowPlaying
	n.mu.Unlock()
	if !want || track == nil || track.Title == "" {
		return
	}

	body := track.Artist
	if track.Album != "" {
		body += " · " + track.Album
	}
	n.Notify(ctx, "now-playing:"+track.Artist+"/"+track.Title, track.Title, body, NotificationLevelInfo)
}

// NotifyDaemonStarted reports a daemon that was started or adopted.
func (n *Notifier) NotifyDaemonStarted(ctx context.Context, result *model.StartResult) {
	n.Notify(ctx,
		"daemon:started",
		"Player daemon ready",
		fmt.Sprintf("%s (pid %d).", result.Message, result.PID),
		NotificationLevelInfo,
	)
}

// NotifyDaemonStopped reports a daemon that went away.
func (n *Notifier) NotifyDaemonStopped(ctx context.Context, pid int) {
	n.Notify(ctx,
		"daemon:stopped",
		"Player daemon stopped",
		fmt.Sprintf("Daemon process %d is no longer running.", pid),
		NotificationLevelWarning,
	)
}

// NotifyDaemonRestarted reports a daemon that was brought back.
func (n *Notifier) NotifyDaemonRestarted(ctx context.Context, pid int) {
	n.Notify(ctx,
		"daemon:restarted",
		"Player daemon restarted",
		fmt.Sprintf("Daemon is running again (pid %d).", pid),
		NotificationLevelInfo,
	)
}

// NotifyConfigReloaded reports a successful config reload.
func (n *Notifier) NotifyConfigReloaded(ctx context.Context) {
	n.Notify(ctx,
		"config:reload",
		"Configuration Reloaded",
		"spotifyctl configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError reports a rejected config edit.
func (n *Notifier) NotifyConfigError(ctx context.Context, err error) {
	n.Notify(ctx,
		"config:error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}
