package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

// SettingsVersion is the current version of the settings file format.
const SettingsVersion = 1

// Persistence errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported settings version")
	ErrInvalidSettings    = errors.New("invalid settings file")
)

// PeripheralRecord identifies the paired device.
type PeripheralRecord struct {
	// Address is the device address, e.g. "AA:BB:CC:DD:EE:FF".
	Address string `json:"address"`

	// Name is the advertised name at pairing time.
	Name string `json:"name,omitempty"`

	PairedAt time.Time `json:"paired_at,omitempty"`
}

// UserSettings is everything the user configures.
type UserSettings struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	Peripheral *PeripheralRecord     `json:"peripheral,omitempty"`
	Thresholds connection.Thresholds `json:"thresholds"`
	Alarm      alarm.Settings        `json:"alarm"`
	SafeZones  []zone.SafeZone       `json:"safe_zones,omitempty"`
}

// DefaultUserSettings returns settings for a fresh install.
func DefaultUserSettings() *UserSettings {
	return &UserSettings{
		Version:    SettingsVersion,
		Thresholds: connection.DefaultThresholds(),
		Alarm:      alarm.DefaultSettings(),
	}
}

// Validate checks every section.
func (u *UserSettings) Validate() error {
	if err := u.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := u.Alarm.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	seen := make(map[string]bool, len(u.SafeZones))
	for _, z := range u.SafeZones {
		if err := z.Validate(); err != nil {
			return fmt.Errorf("%w: zone %q: %w", ErrInvalidSettings, z.Name, err)
		}
		if seen[z.ID] {
			return fmt.Errorf("%w: duplicate zone id %q", ErrInvalidSettings, z.ID)
		}
		seen[z.ID] = true
	}
	return nil
}

// SettingsStore manages the settings file.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

// NewSettingsStore creates a store backed by path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Path returns the backing file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Save writes settings to disk. The write goes through a temporary file
// so a crash never leaves a truncated file behind.
func (s *SettingsStore) Save(settings *UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(settings)
}

func (s *SettingsStore) saveLocked(settings *UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	settings.Version = SettingsVersion
	settings.SavedAt = time.Now()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads settings from disk.
// Returns nil, nil if the file doesn't exist.
func (s *SettingsStore) Load() (*UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *SettingsStore) loadLocked() (*UserSettings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Start from defaults so sections missing from older files keep sane values.
	settings := DefaultUserSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if settings.Version > SettingsVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, settings.Version)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// LoadOrDefault is Load with DefaultUserSettings for a missing file.
func (s *SettingsStore) LoadOrDefault() (*UserSettings, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return DefaultUserSettings(), nil
	}
	return settings, nil
}

// Update loads, applies fn and saves under one lock hold.
func (s *SettingsStore) Update(fn func(*UserSettings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.loadLocked()
	if err != nil {
		return err
	}
	if settings == nil {
		settings = DefaultUserSettings()
	}
	if err := fn(settings); err != nil {
		return err
	}
	return s.saveLocked(settings)
}

// Clear removes the settings file.
func (s *SettingsStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PersistZones saves the zone list whenever m changes. Save errors are
// passed to onError, which may be nil.
func (s *SettingsStore) PersistZones(m *zone.Manager, onError func(error)) {
	m.OnChange(func(zones []zone.SafeZone) {
		err := s.Update(func(u *UserSettings) error {
			u.SafeZones = zones
			return nil
		})
		if err != nil && onError != nil {
			onError(err)
		}
	})
}
