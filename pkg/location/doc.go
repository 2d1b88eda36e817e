// Package location provides alarm.LocationProvider implementations: a
// GeoClue2 client on the system bus, a fixed position for stationary
// installs, and a last-known-fix cache that wraps either.
package location
