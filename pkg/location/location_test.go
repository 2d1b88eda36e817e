package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tether-alarm/tether-go/pkg/zone"
)

type stubProvider struct {
	mock.Mock
}

func (s *stubProvider) CurrentLocation(ctx context.Context) (zone.Location, error) {
	args := s.Called(ctx)
	return args.Get(0).(zone.Location), args.Error(1)
}

func TestStatic(t *testing.T) {
	s, err := NewStatic(37.0, -122.0)
	require.NoError(t, err)

	loc, err := s.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, zone.Location{Latitude: 37.0, Longitude: -122.0}, loc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.CurrentLocation(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticRejectsBadCoordinates(t *testing.T) {
	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -180.5}} {
		_, err := NewStatic(c[0], c[1])
		assert.ErrorIs(t, err, ErrInvalidCoordinates, "%v", c)
	}
}

func TestLastKnown(t *testing.T) {
	home := zone.Location{Latitude: 37, Longitude: -122}
	src := &stubProvider{}
	src.On("CurrentLocation", mock.Anything).Return(home, nil).Once()
	src.On("CurrentLocation", mock.Anything).Return(zone.Location{}, ErrNoFix)

	now := time.Unix(1000, 0)
	c := NewLastKnown(src, time.Minute)
	c.now = func() time.Time { return now }

	loc, err := c.CurrentLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, home, loc)

	now = now.Add(30 * time.Second)
	loc, err = c.CurrentLocation(context.Background())
	require.NoError(t, err, "fresh enough fix is reused")
	assert.Equal(t, home, loc)

	now = now.Add(time.Minute)
	_, err = c.CurrentLocation(context.Background())
	assert.ErrorIs(t, err, ErrNoFix, "stale fix is not reused")

	last, at, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, home, last)
	assert.Equal(t, time.Unix(1000, 0), at)
}

func TestLastKnownDisabled(t *testing.T) {
	src := &stubProvider{}
	src.On("CurrentLocation", mock.Anything).Return(zone.Location{Latitude: 1, Longitude: 2}, nil).Once()
	src.On("CurrentLocation", mock.Anything).Return(zone.Location{}, errors.New("boom"))

	c := NewLastKnown(src, 0)
	_, err := c.CurrentLocation(context.Background())
	require.NoError(t, err)
	_, err = c.CurrentLocation(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestLocationFromProperties(t *testing.T) {
	loc, err := locationFromProperties(map[string]dbus.Variant{
		"Latitude":  dbus.MakeVariant(48.1351),
		"Longitude": dbus.MakeVariant(11.582),
		"Accuracy":  dbus.MakeVariant(25.0),
	})
	require.NoError(t, err)
	assert.Equal(t, zone.Location{Latitude: 48.1351, Longitude: 11.582}, loc)

	_, err = locationFromProperties(map[string]dbus.Variant{"Longitude": dbus.MakeVariant(11.0)})
	assert.ErrorIs(t, err, ErrNoFix)

	_, err = locationFromProperties(map[string]dbus.Variant{
		"Latitude":  dbus.MakeVariant(100.0),
		"Longitude": dbus.MakeVariant(0.0),
	})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestNewGeoClueDefaults(t *testing.T) {
	g := NewGeoClueWithConn(nil, GeoClueOptions{DesktopID: "tether"})
	assert.Equal(t, AccuracyStreet, g.opts.Accuracy)
	assert.Equal(t, 250*time.Millisecond, g.opts.PollInterval)
	assert.NoError(t, g.Close(), "closing an unstarted client is a no-op")
}
