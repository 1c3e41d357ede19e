package player

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// MPRIS names used by the controller.
const (
	ObjectPath          = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	PlayerInterface     = "org.mpris.MediaPlayer2.Player"
	PropertiesInterface = "org.freedesktop.DBus.Properties"
)

// Player interface methods.
const (
	MethodPlay        = "Play"
	MethodPause       = "Pause"
	MethodPlayPause   = "PlayPause"
	MethodNext        = "Next"
	MethodPrevious    = "Previous"
	MethodSeek        = "Seek"
	MethodSetPosition = "SetPosition"
)

// Player interface properties.
const (
	PropPlaybackStatus = "PlaybackStatus"
	PropMetadata       = "Metadata"
	PropVolume         = "Volume"
	PropShuffle        = "Shuffle"
	PropLoopStatus     = "LoopStatus"
	PropPosition       = "Position"
)

// StatusPlaying is the PlaybackStatus value while playing.
const StatusPlaying = "Playing"

// PropertyChange is one property update from a PropertiesChanged signal.
// An invalidated property carries no value and must be read back.
type PropertyChange struct {
	Value       dbus.Variant
	Invalidated bool
}

// Bus is a connection bound to one player service. Implementations are
// replaced wholesale on reconnect.
type Bus interface {
	// Service returns the bound bus name.
	Service() string
	// Call invokes a Player interface method.
	Call(ctx context.Context, method string, args ...any) error
	// Get reads a Player interface property.
	Get(ctx context.Context, property string) (dbus.Variant, error)
	// Set writes a Player interface property.
	Set(ctx context.Context, property string, value dbus.Variant) error
	// Watch returns a stream of changes to property. The stream closes
	// when the bus is closed or the service leaves the bus.
	Watch(property string) <-chan PropertyChange
	// Done is closed once the service has left the bus or the bus is
	// closed.
	Done() <-chan struct{}
	// Close releases the connection.
	Close() error
}

// Dialer opens a Bus bound to a player service.
type Dialer func(ctx context.Context) (Bus, error)
