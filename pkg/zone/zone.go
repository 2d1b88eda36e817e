package zone

import (
	"errors"
	"math"
)

// Zone errors.
var (
	ErrZoneNotFound  = errors.New("zone not found")
	ErrZoneExists    = errors.New("zone already exists")
	ErrInvalidRadius = errors.New("zone radius must be non-negative")
	ErrInvalidZoneID = errors.New("zone id must not be empty")
)

const (
	// EarthRadiusKm is the mean Earth radius used for distance calculations.
	EarthRadiusKm = 6371.0

	// DefaultRadiusMeters is the radius given to newly created zones.
	DefaultRadiusMeters = 100.0

	// DefaultName is the name given to newly created zones.
	DefaultName = "Home"

	degToRad = math.Pi / 180.0
)

// Location is a point on the Earth's surface in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// SafeZone is a circular region in which connection loss does not raise an alarm.
type SafeZone struct {
	// ID uniquely identifies the zone.
	ID string `json:"id" yaml:"id"`

	// Name is the user-facing zone name.
	Name string `json:"name" yaml:"name"`

	// Latitude and Longitude locate the zone center.
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`

	// RadiusMeters is the zone radius. Zero means only the exact center matches.
	RadiusMeters float64 `json:"radius_meters" yaml:"radius_meters"`

	// Enabled zones take part in evaluation; disabled zones never match.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Center returns the zone center as a Location.
func (z SafeZone) Center() Location {
	return Location{Latitude: z.Latitude, Longitude: z.Longitude}
}

// Contains reports whether loc lies inside the zone. Disabled zones contain nothing.
func (z SafeZone) Contains(loc Location) bool {
	if !z.Enabled {
		return false
	}
	return Distance(loc, z.Center()) <= z.RadiusMeters
}

// Validate checks the zone fields that evaluation depends on.
func (z SafeZone) Validate() error {
	if z.ID == "" {
		return ErrInvalidZoneID
	}
	if z.RadiusMeters < 0 || math.IsNaN(z.RadiusMeters) {
		return ErrInvalidRadius
	}
	return nil
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Location) float64 {
	lat1 := a.Latitude * degToRad
	lat2 := b.Latitude * degToRad
	dLat := (b.Latitude - a.Latitude) * degToRad
	dLon := (b.Longitude - a.Longitude) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c * 1000
}

// FindContainingZone returns the first enabled zone, in slice order, that
// contains loc. It returns nil when zones is empty or nothing matches.
// The returned pointer refers to a copy, never into zones.
func FindContainingZone(loc Location, zones []SafeZone) *SafeZone {
	for _, z := range zones {
		if z.Contains(loc) {
			found := z
			return &found
		}
	}
	return nil
}

// IsInsideAny reports whether any enabled zone contains loc.
func IsInsideAny(loc Location, zones []SafeZone) bool {
	return FindContainingZone(loc, zones) != nil
}
