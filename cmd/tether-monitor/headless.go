package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/bluez"
	"github.com/tether-alarm/tether-go/pkg/connection"
)

// initialConnectBackoff spaces out attempts to reach the device at startup.
var initialConnectBackoff = connection.Schedule(5*time.Second, 5)

// connectWithRetry makes the first connection, retrying while the device
// is not reachable yet. Later losses are the coordinator's job.
func connectWithRetry(ctx context.Context, coord *alarm.Coordinator, t *bluez.Transport, address string, logger *slog.Logger, onConnect func(connection.Peripheral)) {
	for attempt := 0; ; attempt++ {
		p, err := t.Lookup(ctx, address)
		if err == nil {
			err = coord.Connect(ctx, p)
		}
		if err == nil {
			logger.Info("monitoring device", "peripheral", p.String())
			onConnect(p)
			return
		}
		if ctx.Err() != nil {
			return
		}

		delay := initialConnectBackoff[len(initialConnectBackoff)-1]
		if attempt < len(initialConnectBackoff) {
			delay = initialConnectBackoff[attempt]
		}
		logger.Warn("initial connect failed", "address", address, "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// logStatus logs tracker events at info level when there is no console.
func logStatus(ctx context.Context, tracker *connection.Tracker, logger *slog.Logger) {
	events, cancel := tracker.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case connection.EventStatusChanged:
				logger.Info("status", "status", ev.State.Status, "message", ev.State.StatusMessage, "alarm", ev.State.AlarmActive)
			case connection.EventConnectionLost:
				logger.Warn("connection lost", "reason", ev.Reason)
			case connection.EventWeakSignal:
				logger.Warn("weak signal", "dbm", ev.SignalDbm)
			}
		}
	}
}
