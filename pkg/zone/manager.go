package zone

import (
	"sync"

	"github.com/google/uuid"
)

// Manager holds the configured safe zones in insertion order.
// All accessors return copies, so callers can evaluate against a snapshot
// while the settings flow keeps mutating the collection.
type Manager struct {
	mu sync.RWMutex

	zones []SafeZone

	onChange func(zones []SafeZone)
}

// NewManager creates a manager seeded with zones. Invalid or duplicate
// entries are rejected with the first error encountered.
func NewManager(zones ...SafeZone) (*Manager, error) {
	m := &Manager{}
	for _, z := range zones {
		if err := m.add(z); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewSafeZone returns an enabled zone at loc with a fresh ID and the default
// name and radius.
func NewSafeZone(loc Location) SafeZone {
	return SafeZone{
		ID:           uuid.NewString(),
		Name:         DefaultName,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		RadiusMeters: DefaultRadiusMeters,
		Enabled:      true,
	}
}

// Add appends a zone. If the zone has no ID one is generated.
// Returns ErrZoneExists if a zone with the same ID is already present.
func (m *Manager) Add(z SafeZone) (SafeZone, error) {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}

	m.mu.Lock()
	if err := m.add(z); err != nil {
		m.mu.Unlock()
		return SafeZone{}, err
	}
	fn, snapshot := m.changeLocked()
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return z, nil
}

func (m *Manager) add(z SafeZone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	if m.indexOf(z.ID) >= 0 {
		return ErrZoneExists
	}
	m.zones = append(m.zones, z)
	return nil
}

// Update replaces the zone with the same ID, keeping its position.
func (m *Manager) Update(z SafeZone) error {
	if err := z.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	i := m.indexOf(z.ID)
	if i < 0 {
		m.mu.Unlock()
		return ErrZoneNotFound
	}
	m.zones[i] = z
	fn, snapshot := m.changeLocked()
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// SetEnabled toggles a zone without touching its geometry.
func (m *Manager) SetEnabled(id string, enabled bool) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrZoneNotFound
	}
	m.zones[i].Enabled = enabled
	fn, snapshot := m.changeLocked()
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// Remove deletes a zone, preserving the order of the rest.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrZoneNotFound
	}
	m.zones = append(m.zones[:i], m.zones[i+1:]...)
	fn, snapshot := m.changeLocked()
	m.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// Get returns a copy of the zone with the given ID.
func (m *Manager) Get(id string) (SafeZone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.indexOf(id)
	if i < 0 {
		return SafeZone{}, ErrZoneNotFound
	}
	return m.zones[i], nil
}

// Zones returns a copy of all zones in insertion order.
func (m *Manager) Zones() []SafeZone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Count returns the number of configured zones.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.zones)
}

// FindContaining evaluates loc against the current snapshot.
func (m *Manager) FindContaining(loc Location) *SafeZone {
	return FindContainingZone(loc, m.Zones())
}

// OnChange sets a callback invoked with a snapshot after every mutation.
// The callback runs outside the manager lock.
func (m *Manager) OnChange(fn func(zones []SafeZone)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) indexOf(id string) int {
	for i := range m.zones {
		if m.zones[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) snapshotLocked() []SafeZone {
	out := make([]SafeZone, len(m.zones))
	copy(out, m.zones)
	return out
}

func (m *Manager) changeLocked() (func([]SafeZone), []SafeZone) {
	if m.onChange == nil {
		return nil, nil
	}
	return m.onChange, m.snapshotLocked()
}
