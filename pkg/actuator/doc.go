// Package actuator provides alarm.Actuator implementations for a Linux
// host: a terminal actuator that prints the alert and rings the bell, a
// desktop actuator that raises a critical freedesktop notification over the
// session bus, and Multi to drive several at once.
//
// Trigger is a no-op while an actuator is already active, so a repeated
// alarm never stacks notifications.
package actuator
