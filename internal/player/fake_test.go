package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/spotifyctl/internal/config"
)

type busCall struct {
	method string
	args   []any
}

// fakeBus is an in-memory player.
type fakeBus struct {
	mu       sync.Mutex
	props    map[string]dbus.Variant
	getErr   map[string]error
	callErr  error
	calls    []busCall
	watchers map[string][]chan PropertyChange
	closed   bool
	done     chan struct{}
	// onCall lets a test mutate properties in response to a method.
	onCall func(f *fakeBus, method string, args []any)
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		props:    make(map[string]dbus.Variant),
		getErr:   make(map[string]error),
		watchers: make(map[string][]chan PropertyChange),
		done:     make(chan struct{}),
	}
}

func (f *fakeBus) Service() string { return "org.mpris.MediaPlayer2.spotifyd.instance1" }

func (f *fakeBus) Call(_ context.Context, method string, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, busCall{method: method, args: args})
	err := f.callErr
	hook := f.onCall
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(f, method, args)
	}
	return nil
}

func (f *fakeBus) Get(_ context.Context, property string) (dbus.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[property]; err != nil {
		return dbus.Variant{}, err
	}
	v, ok := f.props[property]
	if !ok {
		return dbus.Variant{}, errors.New("no such property " + property)
	}
	return v, nil
}

func (f *fakeBus) Set(_ context.Context, property string, value dbus.Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return f.callErr
	}
	f.props[property] = value
	return nil
}

func (f *fakeBus) Watch(property string) <-chan PropertyChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan PropertyChange, 16)
	if f.closed {
		close(ch)
		return ch
	}
	f.watchers[property] = append(f.watchers[property], ch)
	return ch
}

func (f *fakeBus) Done() <-chan struct{} { return f.done }

func (f *fakeBus) Close() error {
	f.vanish()
	return nil
}

// vanish ends every stream the way a player leaving the bus does.
func (f *fakeBus) vanish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, chans := range f.watchers {
		for _, ch := range chans {
			close(ch)
		}
	}
	close(f.done)
}

func (f *fakeBus) set(property string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[property] = dbus.MakeVariant(value)
}

func (f *fakeBus) emit(property string, change PropertyChange) {
	f.mu.Lock()
	chans := append([]chan PropertyChange(nil), f.watchers[property]...)
	f.mu.Unlock()
	for _, ch := range chans {
		ch <- change
	}
}

func (f *fakeBus) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeBus) recorded() []busCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]busCall(nil), f.calls...)
}

// populated returns a fake player in the middle of a track.
func populated() *fakeBus {
	f := newFakeBus()
	f.set(PropPlaybackStatus, "Playing")
	f.set(PropMetadata, map[string]dbus.Variant{
		KeyTitle:   dbus.MakeVariant("Song A"),
		KeyArtist:  dbus.MakeVariant([]string{"Artist B"}),
		KeyAlbum:   dbus.MakeVariant("Album C"),
		KeyTrackID: dbus.MakeVariant(dbus.ObjectPath("/org/spotify/track/abc")),
		KeyLength:  dbus.MakeVariant(int64(3_000_000)),
	})
	f.set(PropVolume, 0.5)
	f.set(PropShuffle, true)
	f.set(PropLoopStatus, "Playlist")
	f.set(PropPosition, int64(1_500_000))
	return f
}

func testPlayerConfig() config.PlayerConfig {
	cfg := config.DefaultConfig().Player
	cfg.BackoffBase = config.Duration(time.Millisecond)
	cfg.SettleDelay = config.Duration(time.Millisecond)
	return cfg
}

// dialerFor returns a Dialer that hands out the given buses in order.
func dialerFor(buses ...Bus) (Dialer, *int) {
	var mu sync.Mutex
	count := 0
	return func(context.Context) (Bus, error) {
		mu.Lock()
		defer mu.Unlock()
		count++
		if len(buses) == 0 {
			return nil, errors.New("no buses left")
		}
		b := buses[0]
		buses = buses[1:]
		return b, nil
	}, &count
}

func connected(t interface{ Fatalf(string, ...any) }, b *fakeBus) *Controller {
	dial, _ := dialerFor(b)
	c := NewController(dial, testPlayerConfig(), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c
}
