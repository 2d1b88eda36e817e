// Package persistence stores user settings that must survive restarts:
// the paired peripheral, monitoring thresholds, alarm settings and the
// safe-zone list. Settings are kept in a versioned JSON file.
package persistence
