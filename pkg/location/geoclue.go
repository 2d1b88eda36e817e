package location

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

const (
	geoclueBus      = "org.freedesktop.GeoClue2"
	geoclueManager  = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface    = "org.freedesktop.GeoClue2.Manager"
	clientIface     = "org.freedesktop.GeoClue2.Client"
	locationIface   = "org.freedesktop.GeoClue2.Location"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// Accuracy levels understood by GeoClue2.
const (
	AccuracyCountry      uint32 = 1
	AccuracyCity         uint32 = 4
	AccuracyNeighborhood uint32 = 5
	AccuracyStreet       uint32 = 6
	AccuracyExact        uint32 = 8
)

// GeoClueOptions configure a GeoClue provider.
type GeoClueOptions struct {
	// DesktopID identifies the application to GeoClue's agent. Required by
	// most GeoClue configurations.
	DesktopID string

	// Accuracy is the requested accuracy level. Defaults to AccuracyStreet,
	// enough to resolve a 100 m zone.
	Accuracy uint32

	// PollInterval is how often the client is checked for a first fix.
	// Defaults to 250ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

// GeoClue reads the current position from the GeoClue2 service. The client
// is created and started on first use and kept running so later lookups
// return immediately.
type GeoClue struct {
	conn *dbus.Conn
	opts GeoClueOptions

	mu     sync.Mutex
	client dbus.ObjectPath
}

var _ alarm.LocationProvider = (*GeoClue)(nil)

// NewGeoClue connects to the system bus.
func NewGeoClue(opts GeoClueOptions) (*GeoClue, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return NewGeoClueWithConn(conn, opts), nil
}

// NewGeoClueWithConn uses an existing bus connection.
func NewGeoClueWithConn(conn *dbus.Conn, opts GeoClueOptions) *GeoClue {
	if opts.Accuracy == 0 {
		opts.Accuracy = AccuracyStreet
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &GeoClue{conn: conn, opts: opts}
}

// CurrentLocation waits for a fix or for ctx to end.
func (g *GeoClue) CurrentLocation(ctx context.Context) (zone.Location, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return zone.Location{}, err
	}

	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()
	for {
		path, err := g.locationPath(ctx, client)
		if err != nil {
			return zone.Location{}, err
		}
		if path != "/" && path.IsValid() {
			return g.readLocation(ctx, path)
		}
		select {
		case <-ctx.Done():
			return zone.Location{}, fmt.Errorf("%w: %v", ErrNoFix, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops and releases the GeoClue client.
func (g *GeoClue) Close() error {
	g.mu.Lock()
	client := g.client
	g.client = ""
	g.mu.Unlock()
	if client == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if call := g.conn.Object(geoclueBus, client).CallWithContext(ctx, clientIface+".Stop", 0); call.Err != nil {
		g.debugLog("geoclue client stop failed", "error", call.Err)
	}
	return g.conn.Object(geoclueBus, geoclueManager).CallWithContext(ctx, managerIface+".DeleteClient", 0, client).Err
}

func (g *GeoClue) ensureClient(ctx context.Context) (dbus.ObjectPath, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != "" {
		return g.client, nil
	}

	var client dbus.ObjectPath
	call := g.conn.Object(geoclueBus, geoclueManager).CallWithContext(ctx, managerIface+".GetClient", 0)
	if call.Err != nil {
		return "", fmt.Errorf("geoclue get client: %w", call.Err)
	}
	if err := call.Store(&client); err != nil {
		return "", fmt.Errorf("geoclue get client: %w", err)
	}

	obj := g.conn.Object(geoclueBus, client)
	if g.opts.DesktopID != "" {
		if err := obj.CallWithContext(ctx, propertiesIface+".Set", 0, clientIface, "DesktopId", dbus.MakeVariant(g.opts.DesktopID)).Err; err != nil {
			return "", fmt.Errorf("geoclue set desktop id: %w", err)
		}
	}
	if err := obj.CallWithContext(ctx, propertiesIface+".Set", 0, clientIface, "RequestedAccuracyLevel", dbus.MakeVariant(g.opts.Accuracy)).Err; err != nil {
		return "", fmt.Errorf("geoclue set accuracy: %w", err)
	}
	if err := obj.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
		return "", fmt.Errorf("geoclue start: %w", err)
	}

	g.debugLog("geoclue client started", "client", client, "accuracy", g.opts.Accuracy)
	g.client = client
	return client, nil
}

func (g *GeoClue) locationPath(ctx context.Context, client dbus.ObjectPath) (dbus.ObjectPath, error) {
	var v dbus.Variant
	call := g.conn.Object(geoclueBus, client).CallWithContext(ctx, propertiesIface+".Get", 0, clientIface, "Location")
	if call.Err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrNoFix, ctx.Err())
		}
		return "", fmt.Errorf("geoclue location: %w", call.Err)
	}
	if err := call.Store(&v); err != nil {
		return "", fmt.Errorf("geoclue location: %w", err)
	}
	path, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("geoclue location has unexpected type %T", v.Value())
	}
	return path, nil
}

func (g *GeoClue) readLocation(ctx context.Context, path dbus.ObjectPath) (zone.Location, error) {
	var props map[string]dbus.Variant
	call := g.conn.Object(geoclueBus, path).CallWithContext(ctx, propertiesIface+".GetAll", 0, locationIface)
	if call.Err != nil {
		return zone.Location{}, fmt.Errorf("geoclue read location: %w", call.Err)
	}
	if err := call.Store(&props); err != nil {
		return zone.Location{}, fmt.Errorf("geoclue read location: %w", err)
	}
	return locationFromProperties(props)
}

// locationFromProperties decodes an org.freedesktop.GeoClue2.Location
// property map.
func locationFromProperties(props map[string]dbus.Variant) (zone.Location, error) {
	lat, ok := props["Latitude"].Value().(float64)
	if !ok {
		return zone.Location{}, fmt.Errorf("%w: missing latitude", ErrNoFix)
	}
	lon, ok := props["Longitude"].Value().(float64)
	if !ok {
		return zone.Location{}, fmt.Errorf("%w: missing longitude", ErrNoFix)
	}
	if err := validate(lat, lon); err != nil {
		return zone.Location{}, err
	}
	return zone.Location{Latitude: lat, Longitude: lon}, nil
}

func (g *GeoClue) debugLog(msg string, args ...any) {
	if g.opts.Logger != nil {
		g.opts.Logger.Debug(msg, args...)
	}
}
