package location

import (
	"context"
	"sync"
	"time"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

// LastKnown wraps a provider and falls back to the most recent successful
// fix when a lookup fails, provided that fix is younger than MaxAge.
type LastKnown struct {
	src    alarm.LocationProvider
	maxAge time.Duration
	now    func() time.Time

	mu    sync.Mutex
	last  zone.Location
	at    time.Time
	valid bool
}

var _ alarm.LocationProvider = (*LastKnown)(nil)

// NewLastKnown wraps src. A non-positive maxAge disables the fallback.
func NewLastKnown(src alarm.LocationProvider, maxAge time.Duration) *LastKnown {
	return &LastKnown{src: src, maxAge: maxAge, now: time.Now}
}

// CurrentLocation asks the wrapped provider and records successful fixes.
func (c *LastKnown) CurrentLocation(ctx context.Context) (zone.Location, error) {
	loc, err := c.src.CurrentLocation(ctx)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.last, c.at, c.valid = loc, now, true
		return loc, nil
	}
	if c.valid && c.maxAge > 0 && now.Sub(c.at) <= c.maxAge {
		return c.last, nil
	}
	return zone.Location{}, err
}

// Last returns the most recent fix and when it was taken.
func (c *LastKnown) Last() (zone.Location, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.at, c.valid
}
