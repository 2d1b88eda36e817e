package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/tether-alarm/tether-go/pkg/zone"
)

// Location errors.
var (
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrNoFix              = errors.New("no location fix")
)

// Static always reports the same position.
type Static struct {
	loc zone.Location
}

// NewStatic validates and wraps a fixed position.
func NewStatic(latitude, longitude float64) (*Static, error) {
	if err := validate(latitude, longitude); err != nil {
		return nil, err
	}
	return &Static{loc: zone.Location{Latitude: latitude, Longitude: longitude}}, nil
}

// CurrentLocation returns the fixed position unless ctx is already done.
func (s *Static) CurrentLocation(ctx context.Context) (zone.Location, error) {
	if err := ctx.Err(); err != nil {
		return zone.Location{}, err
	}
	return s.loc, nil
}

func validate(latitude, longitude float64) error {
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, latitude, longitude)
	}
	return nil
}
