// Package zone implements safe-zone (geofence) evaluation.
//
// A safe zone is a circular region on the Earth's surface in which losing the
// link to the paired peripheral is expected, for example at home. The alarm
// coordinator suppresses the alarm while the current location lies inside
// any enabled safe zone.
//
// # Containment
//
// Distance is the great-circle distance computed with the Haversine formula
// on a spherical Earth of radius 6371 km. A location is inside a zone when
// the distance to the zone center is less than or equal to the zone radius,
// so the boundary itself counts as inside.
//
// [FindContainingZone] walks zones in their configured order and returns the
// first enabled match. It is not a nearest-zone search: when zones overlap,
// the earlier zone wins.
//
// # Zone Collection
//
// The [Manager] keeps the configured zones in insertion order and hands out
// copies, so evaluation always runs against an immutable snapshot.
package zone
