package player

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_PlaybackStatus(t *testing.T) {
	b := populated()
	c := connected(t, b)
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()

	b.emit(PropPlaybackStatus, PropertyChange{Value: dbus.MakeVariant("Paused")})

	s := next(t, sub)
	assert.False(t, s.IsPlaying)
	assert.False(t, c.State().IsPlaying)
	// Other fields are carried over.
	assert.Equal(t, 0.5, s.Volume)
	require.NotNil(t, s.Track)
}

func TestListener_Metadata(t *testing.T) {
	b := populated()
	c := connected(t, b)
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()

	b.emit(PropMetadata, PropertyChange{Value: dbus.MakeVariant(map[string]dbus.Variant{
		KeyTitle:  dbus.MakeVariant("Next Song"),
		KeyArtist: dbus.MakeVariant([]string{"Next Artist"}),
		KeyLength: dbus.MakeVariant(int64(120_000_000)),
	})})

	s := next(t, sub)
	require.NotNil(t, s.Track)
	assert.Equal(t, "Next Song", s.Track.Title)
	assert.Equal(t, "Next Artist", s.Track.Artist)
	assert.Equal(t, int64(120_000), s.DurationMs)
	assert.True(t, s.IsPlaying)

	b.emit(PropMetadata, PropertyChange{Value: dbus.MakeVariant(map[string]dbus.Variant{})})
	s = next(t, sub)
	assert.Nil(t, s.Track)
	assert.Zero(t, s.DurationMs)
}

func TestListener_InvalidatedPropertyIsReadBack(t *testing.T) {
	b := populated()
	c := connected(t, b)
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()

	b.set(PropPlaybackStatus, "Stopped")
	b.emit(PropPlaybackStatus, PropertyChange{Invalidated: true})

	assert.False(t, next(t, sub).IsPlaying)
}

func TestListener_FailedReadIsSkipped(t *testing.T) {
	b := populated()
	c := connected(t, b)
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()

	b.mu.Lock()
	b.getErr[PropPlaybackStatus] = errors.New("no reply")
	b.mu.Unlock()
	b.emit(PropPlaybackStatus, PropertyChange{Invalidated: true})

	select {
	case <-sub.C:
		t.Fatal("failed read must not publish")
	case <-time.After(50 * time.Millisecond):
	}

	// The listener keeps running.
	b.emit(PropPlaybackStatus, PropertyChange{Value: dbus.MakeVariant("Paused")})
	assert.False(t, next(t, sub).IsPlaying)
}

func TestListener_UnexpectedTypeIgnored(t *testing.T) {
	b := populated()
	c := connected(t, b)
	defer c.Close()

	sub := c.Subscribe()
	defer sub.Close()

	b.emit(PropPlaybackStatus, PropertyChange{Value: dbus.MakeVariant(uint32(3))})
	b.emit(PropPlaybackStatus, PropertyChange{Value: dbus.MakeVariant("Paused")})

	assert.False(t, next(t, sub).IsPlaying)
	assert.False(t, c.State().IsPlaying)
}
