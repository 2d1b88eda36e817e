package bluez

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/tether-alarm/tether-go/pkg/connection"
	tlog "github.com/tether-alarm/tether-go/pkg/log"
)

const (
	bluezBus          = "org.bluez"
	deviceIface       = "org.bluez.Device1"
	propertiesIface   = "org.freedesktop.DBus.Properties"
	objectManagerIf   = "org.freedesktop.DBus.ObjectManager"
	propertiesChanged = propertiesIface + ".PropertiesChanged"
)

// Transport errors.
var (
	ErrClosed          = errors.New("transport closed")
	ErrWrongPeripheral = errors.New("peripheral is not a bluez device")
	ErrUnknownDevice   = errors.New("device not known to bluez")
)

// Options configure a Transport.
type Options struct {
	// Adapter is the controller name. Defaults to "hci0".
	Adapter string

	// Logger is the optional operational logger.
	Logger *slog.Logger

	// Trace receives transport-level events. Optional.
	Trace tlog.Logger
}

// Transport talks to BlueZ over the system bus.
type Transport struct {
	conn    *dbus.Conn
	adapter string
	logger  *slog.Logger
	trace   tlog.Logger

	mu   sync.Mutex
	rssi map[string]int16

	disconnects chan connection.Peripheral
	signals     chan *dbus.Signal
	stopCh      chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

var _ connection.Transport = (*Transport)(nil)

// New connects to the system bus and starts watching device properties.
func New(opts Options) (*Transport, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return NewWithConn(conn, opts)
}

// NewWithConn uses an existing bus connection. The connection is shared and
// is not closed by Close.
func NewWithConn(conn *dbus.Conn, opts Options) (*Transport, error) {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	t := &Transport{
		conn:        conn,
		adapter:     opts.Adapter,
		logger:      opts.Logger,
		trace:       tlog.OrNoop(opts.Trace),
		rssi:        make(map[string]int16),
		disconnects: make(chan connection.Peripheral, 4),
		signals:     make(chan *dbus.Signal, 32),
		stopCh:      make(chan struct{}),
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceIface),
	); err != nil {
		return nil, fmt.Errorf("subscribe to device properties: %w", err)
	}
	conn.Signal(t.signals)

	t.wg.Add(1)
	go t.watch()
	return t, nil
}

// Adapter returns the controller name.
func (t *Transport) Adapter() string {
	return t.adapter
}

// Device returns a handle for address on this adapter.
func (t *Transport) Device(address string) (*Device, error) {
	return NewDevice(t.adapter, address)
}

// Lookup resolves address against BlueZ, filling in name and pairing state.
func (t *Transport) Lookup(ctx context.Context, address string) (*Device, error) {
	d, err := t.Device(address)
	if err != nil {
		return nil, err
	}
	var props map[string]dbus.Variant
	call := t.conn.Object(bluezBus, d.Path).CallWithContext(ctx, propertiesIface+".GetAll", 0, deviceIface)
	if call.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownDevice, d.Address, call.Err)
	}
	if err := call.Store(&props); err != nil {
		return nil, fmt.Errorf("decode device properties: %w", err)
	}
	full, ok := deviceFromProperties(d.Path, props)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, d.Address)
	}
	return full, nil
}

// PairedDevices lists the paired devices on this adapter sorted by address.
func (t *Transport) PairedDevices(ctx context.Context) ([]*Device, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := t.conn.Object(bluezBus, "/").CallWithContext(ctx, objectManagerIf+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("list bluez objects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("decode bluez objects: %w", err)
	}
	return pairedOn(t.adapter, objects), nil
}

func pairedOn(adapter string, objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []*Device {
	prefix := "/org/bluez/" + adapter + "/"
	var out []*Device
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		d, ok := deviceFromProperties(path, props)
		if !ok || !d.Paired {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Connect asks BlueZ to connect the device. The handle is unchanged.
func (t *Transport) Connect(ctx context.Context, p connection.Peripheral) (connection.Peripheral, error) {
	d, err := t.device(p)
	if err != nil {
		return nil, err
	}
	if err := t.call(ctx, d, deviceIface+".Connect"); err != nil {
		t.traceError(d, err, "connect")
		return nil, fmt.Errorf("connect %s: %w", d.Address, err)
	}
	t.debugLog("device connected", "address", d.Address)
	return d, nil
}

// Disconnect asks BlueZ to drop the link.
func (t *Transport) Disconnect(ctx context.Context, p connection.Peripheral) error {
	d, err := t.device(p)
	if err != nil {
		return err
	}
	if err := t.call(ctx, d, deviceIface+".Disconnect"); err != nil {
		return fmt.Errorf("disconnect %s: %w", d.Address, err)
	}
	return nil
}

// IsConnected reads Device1.Connected.
func (t *Transport) IsConnected(ctx context.Context, p connection.Peripheral) (bool, error) {
	d, err := t.device(p)
	if err != nil {
		return false, err
	}
	v, err := t.property(ctx, d, "Connected")
	if err != nil {
		return false, err
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property Connected has unexpected type %T", v.Value())
	}
	return connected, nil
}

// Probe reads Device1.RSSI. BlueZ only publishes RSSI while it has a recent
// reading; when the property is missing the last value seen in a
// PropertiesChanged signal is returned, or 0 when there is none.
func (t *Transport) Probe(ctx context.Context, p connection.Peripheral) (int, error) {
	d, err := t.device(p)
	if err != nil {
		return 0, err
	}
	v, err := t.property(ctx, d, "RSSI")
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) && strings.HasSuffix(dbusErr.Name, ".InvalidArgs") {
			t.mu.Lock()
			rssi := t.rssi[d.Address]
			t.mu.Unlock()
			return int(rssi), nil
		}
		return 0, err
	}
	rssi, ok := v.Value().(int16)
	if !ok {
		return 0, fmt.Errorf("property RSSI has unexpected type %T", v.Value())
	}
	t.mu.Lock()
	t.rssi[d.Address] = rssi
	t.mu.Unlock()
	return int(rssi), nil
}

// Disconnects streams devices whose Connected property went false.
func (t *Transport) Disconnects() <-chan connection.Peripheral {
	return t.disconnects
}

// Close stops the signal watcher. The bus connection stays open.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		t.conn.RemoveSignal(t.signals)
		_ = t.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, deviceIface),
		)
		t.wg.Wait()
	})
	return nil
}

func (t *Transport) watch() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		case sig, ok := <-t.signals:
			if !ok {
				return
			}
			t.handleSignal(sig)
		}
	}
}

func (t *Transport) handleSignal(sig *dbus.Signal) {
	change, ok := parsePropertiesChanged(sig)
	if !ok || !strings.HasPrefix(string(sig.Path), "/org/bluez/"+t.adapter+"/") {
		return
	}

	if change.hasRSSI {
		t.mu.Lock()
		t.rssi[change.address] = change.rssi
		t.mu.Unlock()
	}
	if !change.disconnected {
		return
	}

	d := &Device{Address: change.address, Path: sig.Path}
	if t.logger != nil {
		t.logger.Info("device disconnected", "address", d.Address)
	}
	t.trace.Log(tlog.Event{
		Timestamp:    time.Now(),
		PeripheralID: d.Address,
		Component:    tlog.ComponentTransport,
		Category:     tlog.CategoryState,
		StateChange:  &tlog.StateChangeEvent{NewState: "DISCONNECTED", Reason: "PropertiesChanged"},
	})

	select {
	case t.disconnects <- d:
	default:
		t.debugLog("disconnect notification dropped, nobody listening", "address", d.Address)
	}
}

type propertyChange struct {
	address      string
	disconnected bool
	hasRSSI      bool
	rssi         int16
}

// parsePropertiesChanged extracts the Device1 changes we care about.
func parsePropertiesChanged(sig *dbus.Signal) (propertyChange, bool) {
	var pc propertyChange
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return pc, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != deviceIface {
		return pc, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return pc, false
	}
	addr, ok := AddressFromPath(sig.Path)
	if !ok {
		return pc, false
	}
	pc.address = addr

	if connected, ok := variantValue[bool](changed, "Connected"); ok && !connected {
		pc.disconnected = true
	}
	if rssi, ok := variantValue[int16](changed, "RSSI"); ok {
		pc.hasRSSI = true
		pc.rssi = rssi
	}
	return pc, pc.disconnected || pc.hasRSSI
}

func (t *Transport) device(p connection.Peripheral) (*Device, error) {
	select {
	case <-t.stopCh:
		return nil, ErrClosed
	default:
	}
	switch d := p.(type) {
	case *Device:
		return d, nil
	case nil:
		return nil, connection.ErrNoPeripheral
	default:
		// Foreign handles are accepted when their ID is an address.
		nd, err := t.Device(p.ID())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWrongPeripheral, err)
		}
		return nd, nil
	}
}

func (t *Transport) call(ctx context.Context, d *Device, method string) error {
	return t.conn.Object(bluezBus, d.Path).CallWithContext(ctx, method, 0).Err
}

func (t *Transport) property(ctx context.Context, d *Device, name string) (dbus.Variant, error) {
	var v dbus.Variant
	call := t.conn.Object(bluezBus, d.Path).CallWithContext(ctx, propertiesIface+".Get", 0, deviceIface, name)
	if call.Err != nil {
		return v, call.Err
	}
	if err := call.Store(&v); err != nil {
		return v, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

func (t *Transport) traceError(d *Device, err error, op string) {
	t.trace.Log(tlog.Event{
		Timestamp:    time.Now(),
		PeripheralID: d.Address,
		Component:    tlog.ComponentTransport,
		Category:     tlog.CategoryError,
		Error:        &tlog.ErrorEventData{Message: err.Error(), Context: op},
	})
}

func (t *Transport) debugLog(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}
