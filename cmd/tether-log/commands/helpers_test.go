package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	tlog "github.com/tether-alarm/tether-go/pkg/log"
)

var testTime = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func createTestTrace(t *testing.T, events []tlog.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.cbor")

	logger, err := tlog.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func ptr[T any](v T) *T { return &v }

// episodeTrace is a loss episode that ends in a successful reconnect.
func episodeTrace() []tlog.Event {
	const periph = "AA:BB:CC:DD:EE:FF"
	const ep = "3f2a9c1e-0000-4000-8000-000000000001"
	return []tlog.Event{
		{Timestamp: testTime, PeripheralID: periph, Component: tlog.ComponentMonitor, Category: tlog.CategoryProbe,
			Probe: &tlog.ProbeEvent{Success: true, SignalDbm: -60, Duration: 3 * time.Millisecond}},
		{Timestamp: testTime.Add(time.Second), PeripheralID: periph, Component: tlog.ComponentMonitor, Category: tlog.CategoryProbe,
			Probe: &tlog.ProbeEvent{Success: true, SignalDbm: -85, Weak: true}},
		{Timestamp: testTime.Add(2 * time.Second), PeripheralID: periph, Component: tlog.ComponentMonitor, Category: tlog.CategoryProbe,
			Probe: &tlog.ProbeEvent{FailedCount: 1}},
		{Timestamp: testTime.Add(2 * time.Second), PeripheralID: periph, Component: tlog.ComponentMonitor, Category: tlog.CategoryProbe,
			Probe: &tlog.ProbeEvent{Dropped: true}},
		{Timestamp: testTime.Add(3 * time.Second), PeripheralID: periph, EpisodeID: ep, Component: tlog.ComponentMonitor, Category: tlog.CategoryState,
			StateChange: &tlog.StateChangeEvent{OldState: "CONNECTED", NewState: "DISCONNECTED", Reason: "Device disconnected"}},
		{Timestamp: testTime.Add(3 * time.Second), PeripheralID: periph, EpisodeID: ep, Component: tlog.ComponentCoordinator, Category: tlog.CategoryAlarm,
			Alarm: &tlog.AlarmEvent{Decision: tlog.AlarmSuppressed, ZoneID: "z1", ZoneName: "Home", Latitude: ptr(52.52), Longitude: ptr(13.405)}},
		{Timestamp: testTime.Add(5 * time.Second), PeripheralID: periph, EpisodeID: ep, Component: tlog.ComponentReconnector, Category: tlog.CategoryReconnect,
			Reconnect: &tlog.ReconnectEvent{Attempt: 0, MaxAttempts: 5, Delay: 2 * time.Second, Outcome: tlog.ReconnectWaiting}},
		{Timestamp: testTime.Add(6 * time.Second), PeripheralID: periph, EpisodeID: ep, Component: tlog.ComponentReconnector, Category: tlog.CategoryReconnect,
			Reconnect: &tlog.ReconnectEvent{Attempt: 0, MaxAttempts: 5, Outcome: tlog.ReconnectFailed, Detail: "page timeout"}},
		{Timestamp: testTime.Add(10 * time.Second), PeripheralID: periph, EpisodeID: ep, Component: tlog.ComponentReconnector, Category: tlog.CategoryReconnect,
			Reconnect: &tlog.ReconnectEvent{Attempt: 1, MaxAttempts: 5, Outcome: tlog.ReconnectSucceeded}},
		{Timestamp: testTime.Add(11 * time.Second), Component: tlog.ComponentTransport, Category: tlog.CategoryError,
			Error: &tlog.ErrorEventData{Message: "dbus: connection closed", Context: "probe"}},
	}
}
