package alarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

type testPeripheral string

func (p testPeripheral) ID() string { return string(p) }

// fakeTransport scripts connects and probes.
type fakeTransport struct {
	mu          sync.Mutex
	connect     func(n int) (connection.Peripheral, error)
	connects    int
	linkUp      bool
	disconnects int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		linkUp: true,
		connect: func(int) (connection.Peripheral, error) {
			return testPeripheral("tag-1"), nil
		},
	}
}

func (f *fakeTransport) Connect(_ context.Context, _ connection.Peripheral) (connection.Peripheral, error) {
	f.mu.Lock()
	n := f.connects
	f.connects++
	fn := f.connect
	f.mu.Unlock()
	return fn(n)
}

func (f *fakeTransport) Probe(context.Context, connection.Peripheral) (int, error) { return -50, nil }

func (f *fakeTransport) IsConnected(context.Context, connection.Peripheral) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkUp, nil
}

func (f *fakeTransport) Disconnect(context.Context, connection.Peripheral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) Disconnects() <-chan connection.Peripheral { return nil }

func (f *fakeTransport) connectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) setLinkUp(up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkUp = up
}

type stubActuator struct{ mock.Mock }

func (a *stubActuator) Trigger(ctx context.Context, s Settings) error {
	return a.Called(ctx, s).Error(0)
}

func (a *stubActuator) Stop(ctx context.Context) error {
	return a.Called(ctx).Error(0)
}

func (a *stubActuator) IsActive() bool {
	return a.Called().Bool(0)
}

type locationFunc func(ctx context.Context) (zone.Location, error)

func (f locationFunc) CurrentLocation(ctx context.Context) (zone.Location, error) {
	return f(ctx)
}

func fixedLocation(lat, lon float64) LocationProvider {
	return locationFunc(func(context.Context) (zone.Location, error) {
		return zone.Location{Latitude: lat, Longitude: lon}, nil
	})
}

// delayRecorder fires immediately and records requested delays.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayRecorder) after(delay time.Duration) <-chan time.Time {
	d.mu.Lock()
	d.delays = append(d.delays, delay)
	d.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (d *delayRecorder) recorded() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays...)
}

var homeZone = zone.SafeZone{
	ID:           "home",
	Name:         "Home",
	Latitude:     37.0,
	Longitude:    -122.0,
	RadiusMeters: 100,
	Enabled:      true,
}

type harness struct {
	transport   *fakeTransport
	actuator    *stubActuator
	tracker     *connection.Tracker
	monitor     *connection.Monitor
	reconnector *connection.Reconnector
	delays      *delayRecorder
	coord       *Coordinator
}

type harnessOption func(*Config, *harness)

func withLocation(l LocationProvider) harnessOption {
	return func(c *Config, _ *harness) { c.Location = l }
}

func withZones(z ...zone.SafeZone) harnessOption {
	return func(c *Config, _ *harness) { c.Zones = StaticZones(z) }
}

func withThresholds(fn func(*connection.Thresholds)) harnessOption {
	return func(c *Config, _ *harness) { fn(&c.Thresholds) }
}

func withAfter(after func(time.Duration) <-chan time.Time) harnessOption {
	return func(_ *Config, h *harness) {
		h.reconnector = connection.NewReconnector(connection.ReconnectorConfig{
			Transport: h.transport,
			Tracker:   h.tracker,
			After:     after,
		})
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		actuator:  &stubActuator{},
		tracker:   connection.NewTracker(),
		delays:    &delayRecorder{},
	}
	h.monitor = connection.NewMonitor(connection.MonitorConfig{
		Transport:          h.transport,
		Tracker:            h.tracker,
		SignalThresholdDbm: connection.DefaultSignalThresholdDbm,
	})
	h.reconnector = connection.NewReconnector(connection.ReconnectorConfig{
		Transport: h.transport,
		Tracker:   h.tracker,
		After:     h.delays.after,
	})

	th := connection.DefaultThresholds()
	th.ProbeInterval = time.Hour
	th.AutoReconnect = false

	cfg := Config{
		Transport:       h.transport,
		Actuator:        h.actuator,
		Thresholds:      th,
		Settings:        DefaultSettings(),
		LocationTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg, h)
	}
	cfg.Monitor = h.monitor
	cfg.Reconnector = h.reconnector

	coord, err := New(cfg)
	require.NoError(t, err)
	h.coord = coord
	t.Cleanup(func() {
		coord.Close()
		h.tracker.Close()
	})
	return h
}
