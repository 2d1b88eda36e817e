package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// ErrInvalidAddress is returned for malformed Bluetooth addresses.
var ErrInvalidAddress = errors.New("invalid bluetooth address")

// Device is a BlueZ device handle. It implements connection.Peripheral.
type Device struct {
	Address string
	Name    string
	Path    dbus.ObjectPath
	Paired  bool
}

// NewDevice builds a handle for address on adapter.
func NewDevice(adapter, address string) (*Device, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return &Device{Address: addr, Path: DevicePath(adapter, addr)}, nil
}

// ID returns the device address.
func (d *Device) ID() string {
	return d.Address
}

// String returns "Name (Address)" or just the address.
func (d *Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

// NormalizeAddress validates XX:XX:XX:XX:XX:XX and returns it upper-cased.
func NormalizeAddress(address string) (string, error) {
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for _, p := range parts {
		if len(p) != 2 || !isHex(p[0]) || !isHex(p[1]) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	return strings.ToUpper(address), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// DevicePath converts an address to its object path.
// "AA:BB:CC:DD:EE:FF" on hci0 is /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func DevicePath(adapter, address string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, strings.ReplaceAll(strings.ToUpper(address), ":", "_")))
}

// AddressFromPath is the inverse of DevicePath. Paths below a device (GATT
// services etc.) are rejected.
func AddressFromPath(path dbus.ObjectPath) (string, bool) {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 || !strings.HasPrefix(s, "/org/bluez/") {
		return "", false
	}
	addr := strings.ReplaceAll(s[i+len("/dev_"):], "_", ":")
	addr, err := NormalizeAddress(addr)
	if err != nil {
		return "", false
	}
	return addr, true
}

// deviceFromProperties builds a Device from a Device1 property map as
// returned by GetManagedObjects.
func deviceFromProperties(path dbus.ObjectPath, props map[string]dbus.Variant) (*Device, bool) {
	addr, ok := variantValue[string](props, "Address")
	if !ok {
		if addr, ok = AddressFromPath(path); !ok {
			return nil, false
		}
	}
	d := &Device{Address: strings.ToUpper(addr), Path: path}
	if name, ok := variantValue[string](props, "Alias"); ok {
		d.Name = name
	} else if name, ok := variantValue[string](props, "Name"); ok {
		d.Name = name
	}
	d.Paired, _ = variantValue[bool](props, "Paired")
	return d, true
}

func variantValue[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	val, ok := v.Value().(T)
	if !ok {
		return zero, false
	}
	return val, true
}
