// Package bluez implements connection.Transport on top of the BlueZ D-Bus
// API.
//
// Devices are addressed by their Bluetooth address. The transport reads the
// org.bluez.Device1 Connected and RSSI properties for probing and watches
// PropertiesChanged signals to surface link drops without waiting for the
// next probe.
package bluez
