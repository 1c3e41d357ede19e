package player

import (
	"context"
	"math"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/process"
)

// PlayPause toggles playback and returns whether the player is now
// playing, read back after a short settle delay.
func (c *Controller) PlayPause(ctx context.Context) (bool, error) {
	const op = "play-pause"
	b, err := c.bound(op)
	if err != nil {
		return false, err
	}

	if err := b.Call(ctx, MethodPlayPause); err != nil {
		return false, model.NewError(model.KindConnection, op, err)
	}

	if err := process.Sleep(ctx, c.settle); err != nil {
		return false, model.NewError(model.KindConnection, op, err)
	}

	v, err := b.Get(ctx, PropPlaybackStatus)
	if err != nil {
		return false, model.NewError(model.KindConnection, op, err)
	}
	status, _ := variantString(v)
	playing := status == StatusPlaying

	c.update(func(s *model.PlaybackSnapshot) {
		s.IsPlaying = playing
	})

	c.logger.Info("play/pause toggled", "playing", playing)
	return playing, nil
}

// Play starts playback.
func (c *Controller) Play(ctx context.Context) error {
	return c.command(ctx, "play", MethodPlay)
}

// Pause pauses playback.
func (c *Controller) Pause(ctx context.Context) error {
	return c.command(ctx, "pause", MethodPause)
}

// Next skips to the next track.
func (c *Controller) Next(ctx context.Context) error {
	return c.command(ctx, "next", MethodNext)
}

// Previous skips to the previous track.
func (c *Controller) Previous(ctx context.Context) error {
	return c.command(ctx, "previous", MethodPrevious)
}

// Seek moves the position by offsetMs, which may be negative.
func (c *Controller) Seek(ctx context.Context, offsetMs int64) error {
	return c.command(ctx, "seek", MethodSeek, offsetMs*1000)
}

// SetPosition moves to an absolute position within the current track.
func (c *Controller) SetPosition(ctx context.Context, positionMs int64) error {
	const op = "set position"
	if positionMs < 0 {
		return model.Errorf(model.KindInvalidArgument, op, "position %d is negative", positionMs)
	}
	track := c.State().Track
	if track == nil || track.URI == "" {
		return model.Errorf(model.KindInvalidArgument, op, "no current track")
	}
	return c.command(ctx, op, MethodSetPosition, dbus.ObjectPath(track.URI), positionMs*1000)
}

// command calls method and then re-reads the authoritative state once the
// player has had time to apply it.
func (c *Controller) command(ctx context.Context, op, method string, args ...any) error {
	b, err := c.bound(op)
	if err != nil {
		return err
	}

	if err := b.Call(ctx, method, args...); err != nil {
		return model.NewError(model.KindConnection, op, err)
	}
	c.logger.Info("player command sent", "command", op)

	if err := process.Sleep(ctx, c.settle); err != nil {
		return model.NewError(model.KindConnection, op, err)
	}
	return c.RefreshState(ctx)
}

// SetVolume sets the volume in [0, 1].
func (c *Controller) SetVolume(ctx context.Context, volume float64) error {
	const op = "set volume"
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return model.Errorf(model.KindInvalidArgument, op, "volume %v outside [0, 1]", volume)
	}
	if err := c.setProperty(ctx, op, PropVolume, volume); err != nil {
		return err
	}
	c.update(func(s *model.PlaybackSnapshot) {
		s.Volume = volume
	})
	c.logger.Info("volume set", "volume", volume)
	return nil
}

// SetShuffle turns shuffle on or off.
func (c *Controller) SetShuffle(ctx context.Context, shuffle bool) error {
	const op = "set shuffle"
	if err := c.setProperty(ctx, op, PropShuffle, shuffle); err != nil {
		return err
	}
	c.update(func(s *model.PlaybackSnapshot) {
		s.Shuffle = shuffle
	})
	c.logger.Info("shuffle set", "shuffle", shuffle)
	return nil
}

// SetRepeat sets the repeat mode.
func (c *Controller) SetRepeat(ctx context.Context, mode model.RepeatMode) error {
	const op = "set repeat"
	if err := c.setProperty(ctx, op, PropLoopStatus, mode.LoopStatus()); err != nil {
		return err
	}
	c.update(func(s *model.PlaybackSnapshot) {
		s.Repeat = mode
	})
	c.logger.Info("repeat set", "repeat", mode.LoopStatus())
	return nil
}

func (c *Controller) setProperty(ctx context.Context, op, property string, value any) error {
	b, err := c.bound(op)
	if err != nil {
		return err
	}
	if err := b.Set(ctx, property, dbus.MakeVariant(value)); err != nil {
		return model.NewError(model.KindConnection, op, err)
	}
	return nil
}
