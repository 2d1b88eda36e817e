package actuator

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/tether-alarm/tether-go/pkg/alarm"
)

const (
	notificationsBus   = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications"

	urgencyCritical = byte(2)
)

// Desktop raises a freedesktop notification. It stays on screen until Stop
// closes it.
type Desktop struct {
	conn    *dbus.Conn
	appName string

	mu     sync.Mutex
	id     uint32
	active bool
}

var _ alarm.Actuator = (*Desktop)(nil)

// NewDesktop connects to the session bus.
func NewDesktop(appName string) (*Desktop, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return NewDesktopWithConn(conn, appName), nil
}

// NewDesktopWithConn uses an existing session bus connection.
func NewDesktopWithConn(conn *dbus.Conn, appName string) *Desktop {
	return &Desktop{conn: conn, appName: appName}
}

// Trigger shows the notification. Vibration has no desktop equivalent and
// is ignored; sound is left to the notification server.
func (d *Desktop) Trigger(ctx context.Context, s alarm.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil
	}
	if !s.NotificationEnabled && !s.SoundEnabled {
		d.active = true
		return nil
	}

	var id uint32
	call := d.conn.Object(notificationsBus, notificationsPath).CallWithContext(ctx, notificationsIface+".Notify", 0,
		d.appName, uint32(0), "dialog-warning", s.NotificationTitle, s.Message,
		[]string{}, notificationHints(s), int32(0))
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	d.id = id
	d.active = true
	return nil
}

// Stop closes the notification.
func (d *Desktop) Stop(ctx context.Context) error {
	d.mu.Lock()
	id := d.id
	d.id = 0
	d.active = false
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	if err := d.conn.Object(notificationsBus, notificationsPath).CallWithContext(ctx, notificationsIface+".CloseNotification", 0, id).Err; err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	return nil
}

// IsActive reports whether a notification is showing.
func (d *Desktop) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// notificationHints maps settings onto the freedesktop hint dictionary.
func notificationHints(s alarm.Settings) map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(urgencyCritical),
		"category": dbus.MakeVariant("device.removed"),
	}
	switch {
	case !s.SoundEnabled || s.SoundVolume == 0:
		hints["suppress-sound"] = dbus.MakeVariant(true)
	case s.SoundPath != "":
		hints["sound-file"] = dbus.MakeVariant(s.SoundPath)
	default:
		hints["sound-name"] = dbus.MakeVariant("alarm-clock-elapsed")
	}
	return hints
}
