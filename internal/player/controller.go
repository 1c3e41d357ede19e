package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/spotifyctl/internal/config"
	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/process"
	"github.com/jmylchreest/spotifyctl/internal/watch"
)

// Controller is a client of one MPRIS player with a cached snapshot of
// its state.
type Controller struct {
	dial     Dialer
	attempts int
	backoff  time.Duration
	settle   time.Duration
	logger   *slog.Logger

	connMu sync.RWMutex
	bus    Bus

	stateMu sync.RWMutex
	state   model.PlaybackSnapshot

	updates *watch.Broadcast[model.PlaybackSnapshot]
}

// NewController creates a Controller. It does not connect.
func NewController(dial Dialer, cfg config.PlayerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Controller{
		dial:     dial,
		attempts: attempts,
		backoff:  cfg.BackoffBase.Duration(),
		settle:   cfg.SettleDelay.Duration(),
		logger:   logger,
		updates:  watch.NewBroadcast[model.PlaybackSnapshot](cfg.Backlog),
	}
}

// Connect binds to the player, retrying with exponential backoff. On
// success the state has been refreshed and change listeners are running.
// When every attempt fails the last error is returned.
func (c *Controller) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err := c.connectOnce(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == c.attempts {
			break
		}
		delay := c.backoff * time.Duration(1<<(attempt-1))
		c.logger.Warn("connection attempt failed, retrying",
			"attempt", attempt,
			"max", c.attempts,
			"delay", delay,
			"error", err)
		if err := process.Sleep(ctx, delay); err != nil {
			return model.NewError(model.KindConnection, "connect", err)
		}
	}

	c.logger.Error("failed to connect to player", "attempts", c.attempts, "error", lastErr)
	return lastErr
}

func (c *Controller) connectOnce(ctx context.Context) error {
	b, err := c.dial(ctx)
	if err != nil {
		if model.KindOf(err) == 0 {
			return model.NewError(model.KindConnection, "connect", err)
		}
		return err
	}

	c.connMu.Lock()
	old := c.bus
	c.bus = b
	c.connMu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("connected to player", "service", b.Service())

	if err := c.RefreshState(ctx); err != nil {
		c.logger.Warn("initial state refresh failed", "error", err)
	}

	c.startListeners(b)
	go c.watchLoss(b)
	return nil
}

// watchLoss unbinds b once its service leaves the bus. Commands then fail
// with a not-connected error until the next Connect.
func (c *Controller) watchLoss(b Bus) {
	<-b.Done()

	c.connMu.Lock()
	current := c.bus == b
	if current {
		c.bus = nil
	}
	c.connMu.Unlock()

	if current {
		c.logger.Warn("player disconnected", "service", b.Service())
		_ = b.Close()
	}
}

// Connected reports whether a player is bound and still on the bus.
func (c *Controller) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.bus != nil && !isDone(c.bus)
}

func isDone(b Bus) bool {
	select {
	case <-b.Done():
		return true
	default:
		return false
	}
}

// Service returns the bound service name, or "".
func (c *Controller) Service() string {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.bus == nil {
		return ""
	}
	return c.bus.Service()
}

// Close releases the connection. Listeners end when their streams close.
func (c *Controller) Close() error {
	c.connMu.Lock()
	b := c.bus
	c.bus = nil
	c.connMu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close()
}

// bound returns the current bus or a not-connected error for op.
func (c *Controller) bound(op string) (Bus, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.bus == nil || isDone(c.bus) {
		return nil, &model.Error{Kind: model.KindNotConnected, Op: op}
	}
	return c.bus, nil
}

// State returns the latest snapshot.
func (c *Controller) State() model.PlaybackSnapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state.Clone()
}

// Subscribe returns a subscription to snapshots published from now on.
func (c *Controller) Subscribe() *watch.Subscription[model.PlaybackSnapshot] {
	return c.updates.Subscribe()
}

// replace swaps in a whole new snapshot and publishes it.
func (c *Controller) replace(next model.PlaybackSnapshot) {
	c.stateMu.Lock()
	c.state = next
	c.stateMu.Unlock()

	c.updates.Publish(next.Clone())
}

// update applies fn to a copy of the snapshot, stores it and publishes.
func (c *Controller) update(fn func(s *model.PlaybackSnapshot)) model.PlaybackSnapshot {
	c.stateMu.Lock()
	next := c.state.Clone()
	fn(&next)
	c.state = next
	c.stateMu.Unlock()

	out := next.Clone()
	c.updates.Publish(out)
	return out
}

// RefreshState reads every property and publishes a full snapshot. Reads
// that fail fall back to defaults: stopped, no track, volume 1.0, shuffle
// off, no repeat, position 0.
func (c *Controller) RefreshState(ctx context.Context) error {
	b, err := c.bound("refresh state")
	if err != nil {
		return err
	}

	next := model.PlaybackSnapshot{Volume: 1.0}

	if v, err := b.Get(ctx, PropPlaybackStatus); err == nil {
		status, _ := variantString(v)
		next.IsPlaying = status == StatusPlaying
	} else {
		c.logger.Debug("failed to read playback status", "error", err)
	}

	if v, err := b.Get(ctx, PropMetadata); err == nil {
		if md, ok := variantMetadata(v); ok {
			next.Track, next.DurationMs = ParseMetadata(md)
		}
	} else {
		c.logger.Debug("failed to read metadata", "error", err)
	}

	if v, err := b.Get(ctx, PropVolume); err == nil {
		if vol, ok := variantFloat(v); ok {
			next.Volume = vol
		}
	}

	if v, err := b.Get(ctx, PropShuffle); err == nil {
		next.Shuffle, _ = variantBool(v)
	}

	if v, err := b.Get(ctx, PropLoopStatus); err == nil {
		status, _ := variantString(v)
		next.Repeat = model.RepeatModeFromLoopStatus(status)
	}

	if v, err := b.Get(ctx, PropPosition); err == nil {
		if us, ok := variantInt(v); ok {
			next.PositionMs = us / 1000
		}
	}

	c.replace(next)
	return nil
}

// Poll refreshes the state every interval until ctx is done, keeping the
// position current between change signals.
func (c *Controller) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			if err := c.RefreshState(ctx); err != nil {
				c.logger.Debug("periodic refresh failed", "error", err)
			}
		}
	}
}
