// Package connection implements the connection-health engine for a single
// paired peripheral.
//
// The package handles:
//   - Periodic liveness probing with a consecutive-failure threshold (Monitor)
//   - Bounded exponential-backoff reconnection with single-flight (Reconnector)
//   - Shared connection state behind one lock (Tracker)
//   - FIFO event delivery to subscribers
//
// # Probing
//
// Monitor.Start fires the first probe immediately and then one per interval.
// At most one probe is in flight; ticks that arrive while a probe is
// outstanding are dropped, never queued. A successful probe resets the
// failure counter. When FailedProbeThreshold consecutive probes fail the
// status becomes DISCONNECTED, a single ConnectionLost event is emitted and
// the loop stops. An unsolicited disconnect reported by the transport is an
// immediate loss.
//
// # Reconnection Strategy
//
// Attempt i (zero-based) waits initialDelay * 2^i before connecting:
//
//	2s, 4s, 8s, 16s, 32s   (initialDelay = 2s, maxAttempts = 5)
//
// There is no jitter and no cap. When every attempt fails the status becomes
// FAILED and no further automatic attempts are made.
package connection
