// Package alarm decides what happens when the link to the peripheral is lost.
//
// The Coordinator consumes connection events. On ConnectionLost it opens an
// episode and either suppresses the alarm, because the user is inside an
// enabled safe zone, or triggers the actuator. A triggered alarm is followed
// by an automatic reconnect when enabled; a successful reconnect stops the
// alarm and resumes monitoring.
//
// The decision fails toward alerting: when the location cannot be obtained
// within the lookup timeout the alarm is triggered.
package alarm
