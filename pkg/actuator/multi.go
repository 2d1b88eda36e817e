package actuator

import (
	"context"
	"errors"

	"github.com/tether-alarm/tether-go/pkg/alarm"
)

// Multi drives several actuators. It is active while any of them is.
type Multi []alarm.Actuator

var _ alarm.Actuator = Multi(nil)

// NewMulti drops nil entries.
func NewMulti(actuators ...alarm.Actuator) Multi {
	m := make(Multi, 0, len(actuators))
	for _, a := range actuators {
		if a != nil {
			m = append(m, a)
		}
	}
	return m
}

// Trigger triggers every actuator and joins their errors.
func (m Multi) Trigger(ctx context.Context, s alarm.Settings) error {
	var errs []error
	for _, a := range m {
		if err := a.Trigger(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every actuator and joins their errors.
func (m Multi) Stop(ctx context.Context) error {
	var errs []error
	for _, a := range m {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsActive reports whether any actuator is active.
func (m Multi) IsActive() bool {
	for _, a := range m {
		if a.IsActive() {
			return true
		}
	}
	return false
}
