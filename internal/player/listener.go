package player

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/spotifyctl/internal/model"
)

// readTimeout bounds the read-back of an invalidated property.
const readTimeout = 5 * time.Second

// startListeners subscribes to playback status and metadata changes on b.
// Each listener runs until b closes its stream.
func (c *Controller) startListeners(b Bus) {
	status := b.Watch(PropPlaybackStatus)
	metadata := b.Watch(PropMetadata)

	go c.listen(b, PropPlaybackStatus, status, c.applyPlaybackStatus)
	go c.listen(b, PropMetadata, metadata, c.applyMetadata)
}

func (c *Controller) listen(b Bus, property string, changes <-chan PropertyChange, apply func(dbus.Variant) bool) {
	c.logger.Debug("property listener active", "property", property)

	for change := range changes {
		value := change.Value
		if change.Invalidated {
			ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
			v, err := b.Get(ctx, property)
			cancel()
			if err != nil {
				c.logger.Warn("failed to read changed property", "property", property, "error", err)
				continue
			}
			value = v
		}
		if !apply(value) {
			c.logger.Warn("unexpected property value", "property", property, "signature", value.Signature().String())
		}
	}

	c.logger.Debug("property listener stopped", "property", property)
}

func (c *Controller) applyPlaybackStatus(v dbus.Variant) bool {
	status, ok := variantString(v)
	if !ok {
		return false
	}
	c.logger.Info("playback status changed", "status", status)
	c.update(func(s *model.PlaybackSnapshot) {
		s.IsPlaying = status == StatusPlaying
	})
	return true
}

func (c *Controller) applyMetadata(v dbus.Variant) bool {
	md, ok := variantMetadata(v)
	if !ok {
		return false
	}
	track, durationMs := ParseMetadata(md)
	if track != nil {
		c.logger.Info("track changed", "title", track.Title, "artist", track.Artist)
	}
	c.update(func(s *model.PlaybackSnapshot) {
		s.Track = track
		s.DurationMs = durationMs
	})
	return true
}
