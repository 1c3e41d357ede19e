package bus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Desktop notification service (freedesktop Desktop Notifications).
const (
	NotificationsService = "org.freedesktop.Notifications"
	NotificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
)

// Notification is a request to the desktop notification server.
type Notification struct {
	AppName       string
	ReplacesID    uint32 // 0 = new notification
	AppIcon       string
	Summary       string
	Body          string
	Hints         map[string]dbus.Variant
	ExpireTimeout int32 // -1 = server default, 0 = never expire
}

// Notify sends n over conn and returns the id the server assigned.
func Notify(ctx context.Context, conn *dbus.Conn, n Notification) (uint32, error) {
	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}

	var id uint32
	err := conn.Object(NotificationsService, NotificationsPath).CallWithContext(ctx,
		NotificationsService+".Notify", 0,
		n.AppName,
		n.ReplacesID,
		n.AppIcon,
		n.Summary,
		n.Body,
		[]string{},
		hints,
		n.ExpireTimeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}
	return id, nil
}

// SessionNotify sends n on the shared session bus connection.
func SessionNotify(ctx context.Context, n Notification) (uint32, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return 0, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return Notify(ctx, conn, n)
}
