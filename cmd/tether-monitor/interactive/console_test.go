package interactive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

type testPeripheral string

func (p testPeripheral) ID() string { return string(p) }

type stubSession struct {
	mock.Mock
	tracker *connection.Tracker
}

func (s *stubSession) Connect(ctx context.Context, p connection.Peripheral) error {
	return s.Called(ctx, p).Error(0)
}

func (s *stubSession) Disconnect(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

func (s *stubSession) Reconnect(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

func (s *stubSession) TestAlarm(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

func (s *stubSession) StopAlarm(ctx context.Context) error {
	return s.Called(ctx).Error(0)
}

func (s *stubSession) Tracker() *connection.Tracker {
	return s.tracker
}

func (s *stubSession) Thresholds() connection.Thresholds {
	return connection.DefaultThresholds()
}

func (s *stubSession) LastOutcome() alarm.Outcome {
	return s.Called().Get(0).(alarm.Outcome)
}

type fixedLocation zone.Location

func (f fixedLocation) CurrentLocation(context.Context) (zone.Location, error) {
	return zone.Location(f), nil
}

func newConsole(t *testing.T) (*Console, *stubSession, *zone.Manager, *bytes.Buffer) {
	t.Helper()
	tracker := connection.NewTracker()
	t.Cleanup(tracker.Close)

	sess := &stubSession{tracker: tracker}
	zones, err := zone.NewManager()
	require.NoError(t, err)

	var out bytes.Buffer
	c := NewWithWriter(Options{
		Session:  sess,
		Zones:    zones,
		Location: fixedLocation{Latitude: 37, Longitude: -122},
		Resolve: func(_ context.Context, address string) (connection.Peripheral, error) {
			if address == "bad" {
				return nil, errors.New("invalid bluetooth address")
			}
			return testPeripheral(address), nil
		},
		DefaultAddress: "AA:BB:CC:DD:EE:FF",
	}, &out)
	return c, sess, zones, &out
}

func TestExecuteQuit(t *testing.T) {
	c, _, _, out := newConsole(t)
	assert.False(t, c.Execute(context.Background(), ""))
	assert.True(t, c.Execute(context.Background(), "quit"))
	assert.Contains(t, out.String(), "Exiting")
}

func TestExecuteUnknown(t *testing.T) {
	c, _, _, out := newConsole(t)
	c.Execute(context.Background(), "frobnicate")
	assert.Contains(t, out.String(), "Unknown command: frobnicate")
}

func TestConnectUsesDefaultAddress(t *testing.T) {
	c, sess, _, out := newConsole(t)
	var connected connection.Peripheral
	c.opts.OnConnect = func(p connection.Peripheral) { connected = p }
	sess.On("Connect", mock.Anything, testPeripheral("AA:BB:CC:DD:EE:FF")).Return(nil).Once()

	c.Execute(context.Background(), "connect")

	sess.AssertExpectations(t)
	assert.Equal(t, testPeripheral("AA:BB:CC:DD:EE:FF"), connected)
	assert.Contains(t, out.String(), "monitoring every 10s")
}

func TestConnectErrors(t *testing.T) {
	c, sess, _, out := newConsole(t)
	c.Execute(context.Background(), "connect bad")
	assert.Contains(t, out.String(), "invalid bluetooth address")
	sess.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)

	out.Reset()
	sess.On("Connect", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	c.Execute(context.Background(), "connect 11:22:33:44:55:66")
	assert.Contains(t, out.String(), "Error: timeout")
}

func TestAlarmCommands(t *testing.T) {
	c, sess, _, out := newConsole(t)
	sess.On("TestAlarm", mock.Anything).Return(nil).Once()
	sess.On("StopAlarm", mock.Anything).Return(nil).Once()
	sess.On("Reconnect", mock.Anything).Return(connection.ErrReconnectExhausted).Once()
	sess.On("Disconnect", mock.Anything).Return(nil).Once()

	c.Execute(context.Background(), "test")
	c.Execute(context.Background(), "stop")
	c.Execute(context.Background(), "reconnect")
	c.Execute(context.Background(), "disconnect")

	sess.AssertExpectations(t)
	s := out.String()
	assert.Contains(t, s, "Test alarm sounding")
	assert.Contains(t, s, "Alarm stopped")
	assert.Contains(t, s, "Error: reconnect attempts exhausted")
	assert.Contains(t, s, "Disconnected")
}

func TestStatus(t *testing.T) {
	c, sess, _, out := newConsole(t)
	sess.tracker.SetStatus(connection.StatusFailed, "reconnect failed after 5 attempts")
	sess.On("LastOutcome").Return(alarm.Outcome{
		Decision: alarm.DecisionSuppressed,
		Reason:   "inside safe zone",
		ZoneName: "Home",
	})

	c.Execute(context.Background(), "status")

	s := out.String()
	assert.Contains(t, s, "FAILED")
	assert.Contains(t, s, "reconnect failed after 5 attempts")
	assert.Contains(t, s, "SUPPRESSED (inside safe zone)")
	assert.Contains(t, s, "Home")
}

func TestZoneCommands(t *testing.T) {
	c, _, zones, out := newConsole(t)
	ctx := context.Background()

	c.Execute(ctx, "zones")
	assert.Contains(t, out.String(), "No safe zones")

	c.Execute(ctx, "zone add Office 250 48.1 11.5")
	require.Equal(t, 1, zones.Count())
	office := zones.Zones()[0]
	assert.Equal(t, "Office", office.Name)
	assert.Equal(t, 250.0, office.RadiusMeters)
	assert.Equal(t, 48.1, office.Latitude)

	c.Execute(ctx, "zone add Home 100")
	require.Equal(t, 2, zones.Count())
	home := zones.Zones()[1]
	assert.Equal(t, 37.0, home.Latitude, "current location used")

	c.Execute(ctx, "zone disable "+office.ID)
	z, err := zones.Get(office.ID)
	require.NoError(t, err)
	assert.False(t, z.Enabled)

	out.Reset()
	c.Execute(ctx, "zones")
	assert.Contains(t, out.String(), "Office")
	assert.Contains(t, out.String(), "250m")

	c.Execute(ctx, "zone rm "+home.ID)
	assert.Equal(t, 1, zones.Count())

	out.Reset()
	c.Execute(ctx, "zone rm nope")
	assert.Contains(t, out.String(), "Error:")

	out.Reset()
	c.Execute(ctx, "zone add Bad x")
	assert.Contains(t, out.String(), "Invalid radius")
}

func TestDevices(t *testing.T) {
	c, _, _, out := newConsole(t)
	c.Execute(context.Background(), "devices")
	assert.Contains(t, out.String(), "not available")

	out.Reset()
	c.opts.Devices = func(context.Context) ([]string, error) {
		return []string{"Keys (AA:BB:CC:DD:EE:FF)"}, nil
	}
	c.Execute(context.Background(), "devices")
	assert.Contains(t, out.String(), "Keys (AA:BB:CC:DD:EE:FF)")
}
