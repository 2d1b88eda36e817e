package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tether-alarm/tether-go/pkg/zone"
)

// Defaults for Settings.
const (
	DefaultVibrationDuration = 1000 * time.Millisecond
	DefaultSoundVolume       = 0.8
	DefaultNotificationTitle = "Distance Alarm"
	DefaultMessage           = "Your device is out of range"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid alarm settings")

// Settings describe how the actuator should alert the user.
type Settings struct {
	VibrationEnabled  bool          `json:"vibration_enabled" yaml:"vibration_enabled"`
	VibrationDuration time.Duration `json:"vibration_duration" yaml:"vibration_duration"`

	SoundEnabled bool    `json:"sound_enabled" yaml:"sound_enabled"`
	SoundVolume  float64 `json:"sound_volume" yaml:"sound_volume"`

	// SoundPath selects a custom sound. Empty means the actuator's default.
	SoundPath string `json:"sound_path,omitempty" yaml:"sound_path,omitempty"`

	NotificationEnabled bool   `json:"notification_enabled" yaml:"notification_enabled"`
	NotificationTitle   string `json:"notification_title" yaml:"notification_title"`
	Message             string `json:"message" yaml:"message"`
}

// DefaultSettings returns the stock alarm settings: everything on.
func DefaultSettings() Settings {
	return Settings{
		VibrationEnabled:    true,
		VibrationDuration:   DefaultVibrationDuration,
		SoundEnabled:        true,
		SoundVolume:         DefaultSoundVolume,
		NotificationEnabled: true,
		NotificationTitle:   DefaultNotificationTitle,
		Message:             DefaultMessage,
	}
}

// Validate checks ranges.
func (s Settings) Validate() error {
	if s.VibrationDuration < 0 {
		return fmt.Errorf("%w: vibration duration must be non-negative", ErrInvalidSettings)
	}
	if s.SoundVolume < 0 || s.SoundVolume > 1 {
		return fmt.Errorf("%w: sound volume must be within [0,1], got %v", ErrInvalidSettings, s.SoundVolume)
	}
	return nil
}

// Actuator plays the alarm. Implementations own vibration, sound and
// notification output.
type Actuator interface {
	Trigger(ctx context.Context, s Settings) error
	Stop(ctx context.Context) error
	IsActive() bool
}

// LocationProvider returns the user's current position.
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (zone.Location, error)
}

// ZoneSource supplies the current safe zones in evaluation order.
// *zone.Manager satisfies it.
type ZoneSource interface {
	Zones() []zone.SafeZone
}

// StaticZones is a fixed ZoneSource.
type StaticZones []zone.SafeZone

// Zones returns a copy of the zones.
func (z StaticZones) Zones() []zone.SafeZone {
	return append([]zone.SafeZone(nil), z...)
}
