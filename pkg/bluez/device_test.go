package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF", false},
		{"aa:bb:cc:0d:ee:ff", "AA:BB:CC:0D:EE:FF", false},
		{"", "", true},
		{"AA:BB:CC:DD:EE", "", true},
		{"AA:BB:CC:DD:EE:FG", "", true},
		{"AAA:BB:CC:DD:EE:F", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDevicePathRoundTrip(t *testing.T) {
	path := DevicePath("hci0", "aa:bb:cc:dd:ee:ff")
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"), path)

	addr, ok := AddressFromPath(path)
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", addr)
}

func TestAddressFromPathRejects(t *testing.T) {
	for _, p := range []dbus.ObjectPath{
		"/org/bluez/hci0",
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service000a",
		"/com/example/dev_AA_BB_CC_DD_EE_FF",
		"/org/bluez/hci0/dev_nothex",
	} {
		_, ok := AddressFromPath(p)
		assert.False(t, ok, string(p))
	}
}

func TestNewDevice(t *testing.T) {
	d, err := NewDevice("hci1", "11:22:33:44:55:66")
	require.NoError(t, err)
	assert.Equal(t, "11:22:33:44:55:66", d.ID())
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci1/dev_11_22_33_44_55_66"), d.Path)
	assert.Equal(t, "11:22:33:44:55:66", d.String())

	d.Name = "Keys"
	assert.Equal(t, "Keys (11:22:33:44:55:66)", d.String())

	_, err = NewDevice("hci0", "bogus")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestDeviceFromProperties(t *testing.T) {
	path := DevicePath("hci0", "AA:BB:CC:DD:EE:FF")

	d, ok := deviceFromProperties(path, map[string]dbus.Variant{
		"Address": dbus.MakeVariant("aa:bb:cc:dd:ee:ff"),
		"Name":    dbus.MakeVariant("Tag"),
		"Alias":   dbus.MakeVariant("My Tag"),
		"Paired":  dbus.MakeVariant(true),
	})
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", d.Address)
	assert.Equal(t, "My Tag", d.Name, "alias wins over name")
	assert.True(t, d.Paired)

	d, ok = deviceFromProperties(path, map[string]dbus.Variant{})
	require.True(t, ok, "address falls back to the path")
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", d.Address)
	assert.False(t, d.Paired)

	_, ok = deviceFromProperties("/org/bluez/hci0", map[string]dbus.Variant{})
	assert.False(t, ok)
}

func TestPairedOn(t *testing.T) {
	dev := func(addr string, paired bool) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{
			deviceIface: {
				"Address": dbus.MakeVariant(addr),
				"Paired":  dbus.MakeVariant(paired),
			},
		}
	}
	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		DevicePath("hci0", "22:00:00:00:00:00"): dev("22:00:00:00:00:00", true),
		DevicePath("hci0", "11:00:00:00:00:00"): dev("11:00:00:00:00:00", true),
		DevicePath("hci0", "33:00:00:00:00:00"): dev("33:00:00:00:00:00", false),
		DevicePath("hci1", "44:00:00:00:00:00"): dev("44:00:00:00:00:00", true),
		"/org/bluez/hci0": {"org.bluez.Adapter1": {}},
	}

	got := pairedOn("hci0", objects)
	require.Len(t, got, 2)
	assert.Equal(t, "11:00:00:00:00:00", got[0].Address)
	assert.Equal(t, "22:00:00:00:00:00", got[1].Address)
}
