// Package log provides the structured event trace for the connection-health engine.
//
// The trace is separate from operational logging (slog). Operational logs are
// for humans; the trace is a complete machine-readable record of what the
// engine observed and decided, suitable for post-mortem analysis of an alarm
// episode.
//
// # Basic Usage
//
// Components accept a Logger in their configuration:
//
//	// Development: mirror trace events to the console
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a CBOR trace file
//	cfg.Trace, _ = log.NewFileLogger("/var/lib/tether/monitor.tlog")
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Every event carries the emitting component and a category:
//   - Probe: a liveness probe result (ProbeEvent)
//   - State: a connection status transition (StateChangeEvent)
//   - Alarm: an alarm policy decision (AlarmEvent)
//   - Reconnect: a reconnection attempt or outcome (ReconnectEvent)
//   - Error: a failure at any component (ErrorEventData)
//
// Events belonging to one loss episode share an EpisodeID.
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events using integer keys. The
// tether-log tool views and summarizes them.
package log
