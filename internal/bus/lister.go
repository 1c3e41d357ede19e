package bus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	// DBusInterface is the message bus daemon's own interface.
	DBusInterface = "org.freedesktop.DBus"
	// DBusPath is the message bus daemon's object path.
	DBusPath = dbus.ObjectPath("/org/freedesktop/DBus")
	// MPRISPrefix is the common prefix of every MPRIS player name.
	MPRISPrefix = "org.mpris.MediaPlayer2."
	// DefaultServicePrefix matches spotifyd's well-known names, which carry
	// an instance suffix (org.mpris.MediaPlayer2.spotifyd.instance1234).
	DefaultServicePrefix = "org.mpris.MediaPlayer2.spotifyd"
)

// NameLister is the discovery surface of the bus.
type NameLister interface {
	// ListNames returns every name currently registered on the bus.
	ListNames(ctx context.Context) ([]string, error)
	// ConnectionPID returns the OS process id owning name.
	ConnectionPID(ctx context.Context, name string) (uint32, error)
}

// ConnLister implements NameLister on an existing connection.
type ConnLister struct {
	conn *dbus.Conn
}

// NewConnLister creates a ConnLister using conn.
func NewConnLister(conn *dbus.Conn) *ConnLister {
	return &ConnLister{conn: conn}
}

// ListNames calls org.freedesktop.DBus.ListNames.
func (l *ConnLister) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	err := l.conn.BusObject().CallWithContext(ctx, DBusInterface+".ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("failed to list bus names: %w", err)
	}
	return names, nil
}

// ConnectionPID calls org.freedesktop.DBus.GetConnectionUnixProcessID.
func (l *ConnLister) ConnectionPID(ctx context.Context, name string) (uint32, error) {
	var pid uint32
	err := l.conn.BusObject().CallWithContext(ctx, DBusInterface+".GetConnectionUnixProcessID", 0, name).Store(&pid)
	if err != nil {
		return 0, fmt.Errorf("failed to get pid of %s: %w", name, err)
	}
	return pid, nil
}

// SessionLister implements NameLister on the shared session bus
// connection, dialing it on first use.
type SessionLister struct{}

// ListNames lists names on the session bus.
func (SessionLister) ListNames(ctx context.Context) ([]string, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return NewConnLister(conn).ListNames(ctx)
}

// ConnectionPID resolves the owner pid of name on the session bus.
func (SessionLister) ConnectionPID(ctx context.Context, name string) (uint32, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return 0, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return NewConnLister(conn).ConnectionPID(ctx, name)
}
