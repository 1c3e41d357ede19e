package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/spotifyctl/internal/bus"
)

// watchBacklog buffers property changes per watcher.
const watchBacklog = 16

// SessionDialer returns a Dialer that opens a private session bus
// connection and binds to the first service matching prefix.
func SessionDialer(prefix string, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (Bus, error) {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to session bus: %w", err)
		}

		discovery := bus.NewDiscovery(bus.NewConnLister(conn), prefix, logger)
		service, err := discovery.FindService(ctx)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		b, err := NewDBusBus(conn, service, logger)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return b, nil
	}
}

// DBusBus implements Bus over a godbus connection it owns.
type DBusBus struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	service string
	logger  *slog.Logger

	signals chan *dbus.Signal
	done    chan struct{} // closed by Close
	lost    chan struct{} // closed once the pump has exited

	mu       sync.Mutex
	watchers map[string][]chan PropertyChange
	closed   bool
	once     sync.Once
}

// NewDBusBus binds conn to service and subscribes to its
// PropertiesChanged signals and to ownership changes of its name. The bus
// takes ownership of conn.
func NewDBusBus(conn *dbus.Conn, service string, logger *slog.Logger) (*DBusBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	err := conn.AddMatchSignal(
		dbus.WithMatchSender(service),
		dbus.WithMatchObjectPath(ObjectPath),
		dbus.WithMatchInterface(PropertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to property changes: %w", err)
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchSender(bus.DBusInterface),
		dbus.WithMatchObjectPath(bus.DBusPath),
		dbus.WithMatchInterface(bus.DBusInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, service),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to owner changes: %w", err)
	}

	// The name may have gone between discovery and the match above.
	var owned bool
	if err := conn.BusObject().Call(bus.DBusInterface+".NameHasOwner", 0, service).Store(&owned); err != nil {
		return nil, fmt.Errorf("failed to check owner of %s: %w", service, err)
	}
	if !owned {
		return nil, fmt.Errorf("player %s left the bus", service)
	}

	b := &DBusBus{
		conn:     conn,
		obj:      conn.Object(service, ObjectPath),
		service:  service,
		logger:   logger,
		signals:  make(chan *dbus.Signal, 64),
		done:     make(chan struct{}),
		lost:     make(chan struct{}),
		watchers: make(map[string][]chan PropertyChange),
	}
	conn.Signal(b.signals)
	go b.pump()

	logger.Debug("bound to player", "service", service)
	return b, nil
}

// Service returns the bound bus name.
func (b *DBusBus) Service() string {
	return b.service
}

// Call invokes a Player method.
func (b *DBusBus) Call(ctx context.Context, method string, args ...any) error {
	if err := b.obj.CallWithContext(ctx, PlayerInterface+"."+method, 0, args...).Err; err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	return nil
}

// Get reads a Player property.
func (b *DBusBus) Get(ctx context.Context, property string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.obj.CallWithContext(ctx, PropertiesInterface+".Get", 0, PlayerInterface, property).Store(&v)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("failed to get %s: %w", property, err)
	}
	return v, nil
}

// Set writes a Player property.
func (b *DBusBus) Set(ctx context.Context, property string, value dbus.Variant) error {
	err := b.obj.CallWithContext(ctx, PropertiesInterface+".Set", 0, PlayerInterface, property, value).Err
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", property, err)
	}
	return nil
}

// Done is closed once the service has left the bus or the bus is closed.
// Every watch stream is closed by then.
func (b *DBusBus) Done() <-chan struct{} {
	return b.lost
}

// Watch returns a stream of changes to property.
func (b *DBusBus) Watch(property string) <-chan PropertyChange {
	ch := make(chan PropertyChange, watchBacklog)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[property] = append(b.watchers[property], ch)
	return ch
}

// Close stops signal delivery, closes every watch stream and the
// connection.
func (b *DBusBus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		b.conn.RemoveSignal(b.signals)
		err = b.conn.Close()
	})
	return err
}

// pump fans PropertiesChanged signals out to watchers until the bus is
// closed or the service releases its name.
func (b *DBusBus) pump() {
	defer close(b.lost)
	defer b.closeWatchers()

	for {
		select {
		case <-b.done:
			return
		case sig, ok := <-b.signals:
			if !ok {
				return
			}
			if b.ownerGone(sig) {
				b.logger.Info("player left the bus", "service", b.service)
				return
			}
			b.dispatch(sig)
		}
	}
}

// ownerGone reports whether sig is a NameOwnerChanged releasing the
// bound service.
func (b *DBusBus) ownerGone(sig *dbus.Signal) bool {
	if sig.Name != bus.DBusInterface+".NameOwnerChanged" || len(sig.Body) < 3 {
		return false
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	return name == b.service && newOwner == ""
}

func (b *DBusBus) dispatch(sig *dbus.Signal) {
	if sig.Path != ObjectPath || sig.Name != PropertiesInterface+".PropertiesChanged" {
		return
	}
	iface, changed, invalidated, ok := parsePropertiesChanged(sig.Body)
	if !ok || iface != PlayerInterface {
		return
	}

	for prop, value := range changed {
		b.deliver(prop, PropertyChange{Value: value})
	}
	for _, prop := range invalidated {
		b.deliver(prop, PropertyChange{Invalidated: true})
	}
}

func (b *DBusBus) deliver(property string, change PropertyChange) {
	b.mu.Lock()
	watchers := append([]chan PropertyChange(nil), b.watchers[property]...)
	b.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- change:
		case <-b.done:
			return
		}
	}
}

func (b *DBusBus) closeWatchers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for prop, chans := range b.watchers {
		for _, ch := range chans {
			close(ch)
		}
		delete(b.watchers, prop)
	}
}

// parsePropertiesChanged unpacks the (s, a{sv}, as) signal body.
func parsePropertiesChanged(body []any) (string, map[string]dbus.Variant, []string, bool) {
	if len(body) < 2 {
		return "", nil, nil, false
	}
	iface, ok := body[0].(string)
	if !ok {
		return "", nil, nil, false
	}
	changed, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return "", nil, nil, false
	}
	var invalidated []string
	if len(body) > 2 {
		invalidated, _ = body[2].([]string)
	}
	return iface, changed, invalidated, true
}
