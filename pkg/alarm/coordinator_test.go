package alarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

func TestDecisionString(t *testing.T) {
	tests := []struct {
		d    Decision
		want string
	}{
		{DecisionNone, "NONE"},
		{DecisionTriggered, "TRIGGERED"},
		{DecisionSuppressed, "SUPPRESSED"},
		{DecisionIgnored, "IGNORED"},
		{Decision(9), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("Decision(%d).String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tr := connection.NewTracker()
	ft := newFakeTransport()
	mon := connection.NewMonitor(connection.MonitorConfig{Transport: ft, Tracker: tr})
	rec := connection.NewReconnector(connection.ReconnectorConfig{Transport: ft, Tracker: tr})
	base := Config{
		Monitor:     mon,
		Reconnector: rec,
		Transport:   ft,
		Actuator:    &stubActuator{},
		Thresholds:  connection.DefaultThresholds(),
		Settings:    DefaultSettings(),
	}

	t.Run("MissingActuator", func(t *testing.T) {
		cfg := base
		cfg.Actuator = nil
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrMissingComponent)
	})

	t.Run("TrackerMismatch", func(t *testing.T) {
		cfg := base
		cfg.Reconnector = connection.NewReconnector(connection.ReconnectorConfig{Transport: ft})
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrTrackerMismatch)
	})

	t.Run("BadThresholds", func(t *testing.T) {
		cfg := base
		cfg.Thresholds.FailedProbeThreshold = 0
		_, err := New(cfg)
		assert.ErrorIs(t, err, connection.ErrInvalidThresholds)
	})

	t.Run("BadSettings", func(t *testing.T) {
		cfg := base
		cfg.Settings.SoundVolume = 1.5
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})

	t.Run("OK", func(t *testing.T) {
		c, err := New(base)
		require.NoError(t, err)
		c.Close()
		c.Close()
	})
}

func TestSuppressedInsideSafeZone(t *testing.T) {
	h := newHarness(t,
		withLocation(fixedLocation(37.0005, -122.0)),
		withZones(homeZone),
		withThresholds(func(th *connection.Thresholds) { th.AutoReconnect = true }),
	)

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Equal(t, DecisionSuppressed, out.Decision)
	assert.Equal(t, "home", out.ZoneID)
	assert.NotEmpty(t, out.EpisodeID)
	assert.Equal(t, DecisionSuppressed, h.coord.LastDecision())
	assert.Equal(t, "In safe zone: Home", h.tracker.Snapshot().StatusMessage)
	assert.False(t, h.tracker.Snapshot().AlarmActive)
	assert.True(t, h.coord.EpisodeActive())

	h.actuator.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
	assert.Zero(t, h.transport.connectCalls(), "no reconnect from the suppress path")
}

func TestTriggeredOutsideSafeZone(t *testing.T) {
	h := newHarness(t,
		withLocation(fixedLocation(37.0018, -122.0)),
		withZones(homeZone),
	)
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Equal(t, DecisionTriggered, out.Decision)
	assert.Equal(t, "outside safe zones", out.Reason)
	assert.True(t, h.tracker.Snapshot().AlarmActive)
	h.actuator.AssertExpectations(t)
}

func TestTriggerPassesSettings(t *testing.T) {
	h := newHarness(t, withThresholds(func(th *connection.Thresholds) { th.SafeZonesEnabled = false }))
	h.actuator.On("Trigger", mock.Anything, DefaultSettings()).Return(nil).Once()

	h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	h.actuator.AssertExpectations(t)
}

func TestSafeZonesDisabledSkipsLocation(t *testing.T) {
	called := false
	loc := locationFunc(func(context.Context) (zone.Location, error) {
		called = true
		return zone.Location{}, errors.New("gps off")
	})
	h := newHarness(t,
		withLocation(loc),
		withZones(homeZone),
		withThresholds(func(th *connection.Thresholds) { th.SafeZonesEnabled = false }),
	)
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Equal(t, DecisionTriggered, out.Decision)
	assert.Equal(t, "safe zones disabled", out.Reason)
	assert.False(t, called, "location is not consulted when safe zones are off")
}

func TestLocationErrorFailsSafe(t *testing.T) {
	loc := locationFunc(func(context.Context) (zone.Location, error) {
		return zone.Location{}, errors.New("permission denied")
	})
	h := newHarness(t, withLocation(loc), withZones(homeZone))
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Equal(t, DecisionTriggered, out.Decision)
	assert.Contains(t, out.Reason, "permission denied")
}

func TestNoLocationProviderFailsSafe(t *testing.T) {
	h := newHarness(t, withZones(homeZone))
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	assert.Equal(t, DecisionTriggered, out.Decision)
}

func TestLocationTimeoutFailsSafe(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	// Ignores ctx on purpose.
	loc := locationFunc(func(context.Context) (zone.Location, error) {
		<-release
		return homeZone.Center(), nil
	})
	h := newHarness(t, withLocation(loc), withZones(homeZone))
	h.coord.cfg.LocationTimeout = 20 * time.Millisecond
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	start := time.Now()
	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, DecisionTriggered, out.Decision)
	assert.Contains(t, out.Reason, context.DeadlineExceeded.Error())
}

func TestDuplicateConnectionLostIgnored(t *testing.T) {
	h := newHarness(t, withThresholds(func(th *connection.Thresholds) { th.SafeZonesEnabled = false }))
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	first := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	second := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Equal(t, DecisionTriggered, first.Decision)
	assert.Equal(t, DecisionIgnored, second.Decision)
	assert.Equal(t, first.EpisodeID, second.EpisodeID)
	assert.Equal(t, DecisionIgnored, h.coord.LastDecision())
	h.actuator.AssertNumberOfCalls(t, "Trigger", 1)
}

func TestActuatorErrorStillMarksAlarmActive(t *testing.T) {
	h := newHarness(t, withThresholds(func(th *connection.Thresholds) { th.SafeZonesEnabled = false }))
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(errors.New("audio device busy"))

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	assert.Equal(t, DecisionTriggered, out.Decision)
	assert.True(t, h.tracker.Snapshot().AlarmActive)
}

func TestAutoReconnectSuccessStopsAlarm(t *testing.T) {
	h := newHarness(t, withThresholds(func(th *connection.Thresholds) {
		th.SafeZonesEnabled = false
		th.AutoReconnect = true
		th.ReconnectMaxAttempts = 3
		th.ReconnectInitialDelay = 2 * time.Second
	}))
	h.transport.connect = func(n int) (connection.Peripheral, error) {
		if n == 0 {
			return nil, errors.New("le-connection-abort")
		}
		return testPeripheral("tag-1"), nil
	}
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()
	h.actuator.On("Stop", mock.Anything).Return(nil).Once()

	h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	require.Eventually(t, h.monitor.Running, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !h.coord.EpisodeActive() }, time.Second, time.Millisecond)

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.delays.recorded())
	assert.Equal(t, 2, h.transport.connectCalls())

	snap := h.tracker.Snapshot()
	assert.Equal(t, connection.StatusConnected, snap.Status)
	assert.Equal(t, 0, snap.FailedProbeCount)
	assert.False(t, snap.AlarmActive)
	h.actuator.AssertExpectations(t)
}

func TestAutoReconnectFailureKeepsAlarm(t *testing.T) {
	h := newHarness(t, withThresholds(func(th *connection.Thresholds) {
		th.SafeZonesEnabled = false
		th.AutoReconnect = true
		th.ReconnectMaxAttempts = 2
		th.ReconnectInitialDelay = time.Millisecond
	}))
	h.transport.connect = func(int) (connection.Peripheral, error) {
		return nil, errors.New("unreachable")
	}
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")

	require.Eventually(t, func() bool {
		return h.tracker.Snapshot().Status == connection.StatusFailed
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !h.coord.Reconnecting() }, time.Second, time.Millisecond)

	snap := h.tracker.Snapshot()
	assert.True(t, snap.AlarmActive)
	assert.Equal(t, "reconnect failed after 2 attempts", snap.StatusMessage)
	assert.False(t, h.monitor.Running())
	assert.True(t, h.coord.EpisodeActive())
	h.actuator.AssertNotCalled(t, "Stop", mock.Anything)

	// Silencing the alarm resolves the episode.
	h.actuator.On("Stop", mock.Anything).Return(nil).Once()
	require.NoError(t, h.coord.StopAlarm(context.Background()))
	assert.False(t, h.tracker.Snapshot().AlarmActive)
	assert.False(t, h.coord.EpisodeActive())
}

func TestManualReconnectAfterSuppressedEpisode(t *testing.T) {
	h := newHarness(t,
		withLocation(fixedLocation(37.0, -122.0)),
		withZones(homeZone),
	)
	h.actuator.On("Stop", mock.Anything).Return(nil)

	require.NoError(t, h.coord.Connect(context.Background(), testPeripheral("tag-1")))
	h.monitor.Stop()

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	require.Equal(t, DecisionSuppressed, out.Decision)

	require.NoError(t, h.coord.Reconnect(context.Background()))
	assert.True(t, h.monitor.Running())
	assert.False(t, h.coord.EpisodeActive())
	assert.Equal(t, connection.StatusConnected, h.tracker.Snapshot().Status)
}

func TestReconnectWhileMonitoring(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.coord.Connect(context.Background(), testPeripheral("tag-1")))
	assert.ErrorIs(t, h.coord.Reconnect(context.Background()), ErrAlreadyConnected)
	assert.ErrorIs(t, h.coord.Connect(context.Background(), testPeripheral("tag-1")), ErrAlreadyConnected)
}

func TestReconnectWithoutPeripheral(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.coord.Reconnect(context.Background()), ErrNoPeripheral)
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.connect = func(int) (connection.Peripheral, error) {
		return nil, errors.New("not in range")
	}

	err := h.coord.Connect(context.Background(), testPeripheral("tag-1"))
	require.Error(t, err)

	snap := h.tracker.Snapshot()
	assert.Equal(t, connection.StatusDisconnected, snap.Status)
	assert.Contains(t, snap.StatusMessage, "not in range")
	assert.False(t, h.monitor.Running())
}

func TestTestAndStopAlarm(t *testing.T) {
	h := newHarness(t)
	h.actuator.On("Trigger", mock.Anything, mock.MatchedBy(func(s Settings) bool {
		return s.Message == "Test alarm"
	})).Return(nil).Once()
	h.actuator.On("Stop", mock.Anything).Return(nil).Once()

	require.NoError(t, h.coord.TestAlarm(context.Background()))
	assert.True(t, h.tracker.Snapshot().AlarmActive)
	assert.False(t, h.coord.EpisodeActive())

	require.NoError(t, h.coord.StopAlarm(context.Background()))
	assert.False(t, h.tracker.Snapshot().AlarmActive)
	h.actuator.AssertExpectations(t)
}

func TestDisconnectCancelsReconnect(t *testing.T) {
	block := func(time.Duration) <-chan time.Time { return nil }
	h := newHarness(t,
		withAfter(block),
		withThresholds(func(th *connection.Thresholds) {
			th.SafeZonesEnabled = false
			th.AutoReconnect = true
		}),
	)
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	require.Eventually(t, h.reconnector.InProgress, time.Second, time.Millisecond)
	assert.True(t, h.coord.Reconnecting())

	require.NoError(t, h.coord.Disconnect(context.Background()))

	assert.False(t, h.reconnector.InProgress())
	assert.False(t, h.coord.EpisodeActive())
	assert.False(t, h.monitor.Running())
	assert.Equal(t, connection.StatusDisconnected, h.tracker.Snapshot().Status)
	assert.Equal(t, "Disconnected", h.tracker.Snapshot().StatusMessage)
}

func TestDisconnectDoesNotRaiseConnectionLost(t *testing.T) {
	h := newHarness(t)
	events, cancel := h.tracker.Subscribe()
	defer cancel()

	require.NoError(t, h.coord.Connect(context.Background(), testPeripheral("tag-1")))
	require.NoError(t, h.coord.Disconnect(context.Background()))

	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			require.NotEqual(t, connection.EventConnectionLost, ev.Type)
		case <-deadline:
			assert.Equal(t, 1, h.transport.disconnects)
			return
		}
	}
}

func TestRunTriggersOnMonitorLoss(t *testing.T) {
	h := newHarness(t, withThresholds(func(th *connection.Thresholds) {
		th.SafeZonesEnabled = false
		th.ProbeInterval = 5 * time.Millisecond
	}))
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- h.coord.Run(ctx) }()

	require.NoError(t, h.coord.Connect(ctx, testPeripheral("tag-1")))
	h.transport.setLinkUp(false)

	require.Eventually(t, func() bool {
		return h.coord.LastDecision() == DecisionTriggered
	}, time.Second, time.Millisecond)
	assert.True(t, h.tracker.Snapshot().AlarmActive)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestConnectResolvesSuppressedEpisode(t *testing.T) {
	h := newHarness(t,
		withLocation(fixedLocation(37.0, -122.0)),
		withZones(homeZone),
	)
	h.actuator.On("Stop", mock.Anything).Return(nil).Once()

	out := h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	require.Equal(t, DecisionSuppressed, out.Decision)
	require.True(t, h.coord.EpisodeActive())

	require.NoError(t, h.coord.Connect(context.Background(), testPeripheral("tag-1")))
	assert.False(t, h.coord.EpisodeActive())
	assert.True(t, h.monitor.Running())
	h.actuator.AssertExpectations(t)
}

func TestConnectRejectedWhileReconnecting(t *testing.T) {
	block := func(time.Duration) <-chan time.Time { return nil }
	h := newHarness(t,
		withAfter(block),
		withThresholds(func(th *connection.Thresholds) {
			th.SafeZonesEnabled = false
			th.AutoReconnect = true
		}),
	)
	h.actuator.On("Trigger", mock.Anything, mock.Anything).Return(nil).Once()

	h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	require.Eventually(t, h.coord.Reconnecting, time.Second, time.Millisecond)

	err := h.coord.Connect(context.Background(), testPeripheral("tag-1"))
	assert.ErrorIs(t, err, connection.ErrReconnectInProgress)
}

func TestDisconnectDuringLocationLookupDropsEpisode(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	loc := locationFunc(func(context.Context) (zone.Location, error) {
		close(entered)
		<-release
		return zone.Location{Latitude: 37.0018, Longitude: -122.0}, nil
	})
	h := newHarness(t,
		withLocation(loc),
		withZones(homeZone),
		withThresholds(func(th *connection.Thresholds) { th.AutoReconnect = true }),
	)

	result := make(chan Outcome, 1)
	go func() {
		result <- h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	}()

	<-entered
	require.NoError(t, h.coord.Disconnect(context.Background()))
	close(release)

	var out Outcome
	select {
	case out = <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnectionLost did not return")
	}

	assert.Equal(t, DecisionIgnored, out.Decision)
	assert.Equal(t, "episode ended during evaluation", out.Reason)
	assert.False(t, h.coord.EpisodeActive())
	assert.False(t, h.coord.Reconnecting())
	assert.False(t, h.monitor.Running())
	assert.Zero(t, h.transport.connectCalls())

	snap := h.tracker.Snapshot()
	assert.Equal(t, connection.StatusDisconnected, snap.Status)
	assert.False(t, snap.AlarmActive)
	h.actuator.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
}

func TestCloseDuringLocationLookupDropsEpisode(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	loc := locationFunc(func(context.Context) (zone.Location, error) {
		close(entered)
		<-release
		return zone.Location{Latitude: 37.0018, Longitude: -122.0}, nil
	})
	h := newHarness(t,
		withLocation(loc),
		withZones(homeZone),
		withThresholds(func(th *connection.Thresholds) { th.AutoReconnect = true }),
	)

	result := make(chan Outcome, 1)
	go func() {
		result <- h.coord.HandleConnectionLost(context.Background(), testPeripheral("tag-1"), "lost")
	}()

	<-entered
	h.coord.Close()
	close(release)

	out := <-result
	assert.Equal(t, DecisionIgnored, out.Decision)
	assert.Zero(t, h.transport.connectCalls())
	h.actuator.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
}
