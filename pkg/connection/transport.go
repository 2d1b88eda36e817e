package connection

import "context"

// Peripheral is an opaque handle to a paired device. The handle may change
// across reconnects; ID is stable.
type Peripheral interface {
	// ID returns a stable identifier, typically the device address.
	ID() string
}

// Transport is the narrow contract to the radio stack.
type Transport interface {
	// Connect establishes a link and returns the (possibly new) handle.
	Connect(ctx context.Context, p Peripheral) (Peripheral, error)

	// Probe reads the current signal strength in dBm. An error means the
	// probe failed.
	Probe(ctx context.Context, p Peripheral) (int, error)

	// IsConnected reports whether the link is up.
	IsConnected(ctx context.Context, p Peripheral) (bool, error)

	// Disconnect tears the link down.
	Disconnect(ctx context.Context, p Peripheral) error

	// Disconnects streams unsolicited link drops. Implementations must not
	// block when nobody is receiving. A nil channel is allowed.
	Disconnects() <-chan Peripheral
}

// SamePeripheral reports whether a and b refer to the same device.
func SamePeripheral(a, b Peripheral) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}

func peripheralID(p Peripheral) string {
	if p == nil {
		return ""
	}
	return p.ID()
}
