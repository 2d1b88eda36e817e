package connection

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the link status. Exactly one status holds at any instant.
type Status uint8

const (
	// StatusDisconnected indicates no active link.
	StatusDisconnected Status = iota

	// StatusConnecting indicates an initial connection attempt is in progress.
	StatusConnecting

	// StatusConnected indicates the link is up and being monitored.
	StatusConnected

	// StatusReconnecting indicates a reconnection sequence is running.
	StatusReconnecting

	// StatusFailed indicates reconnection gave up. Only user action leaves it.
	StatusFailed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// State is a snapshot of the connection.
type State struct {
	Status           Status
	Peripheral       Peripheral
	LastProbeTime    time.Time
	FailedProbeCount int
	StatusMessage    string

	// SignalDbm is the last reported signal strength. Zero until the first
	// successful probe.
	SignalDbm int

	// AlarmActive is true while the alarm is sounding.
	AlarmActive bool
}

// Defaults for Thresholds.
const (
	DefaultProbeInterval        = 10 * time.Second
	DefaultFailedProbeThreshold = 2
	DefaultSignalThresholdDbm   = -80
	DefaultReconnectMaxAttempts = 5
)

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds parameterize a monitoring session. They do not change while a
// session runs.
type Thresholds struct {
	ProbeInterval         time.Duration `json:"probe_interval" yaml:"probe_interval"`
	FailedProbeThreshold  int           `json:"failed_probe_threshold" yaml:"failed_probe_threshold"`
	SignalThresholdDbm    int           `json:"signal_threshold_dbm" yaml:"signal_threshold_dbm"`
	AutoReconnect         bool          `json:"auto_reconnect" yaml:"auto_reconnect"`
	ReconnectMaxAttempts  int           `json:"reconnect_max_attempts" yaml:"reconnect_max_attempts"`
	ReconnectInitialDelay time.Duration `json:"reconnect_initial_delay" yaml:"reconnect_initial_delay"`
	SafeZonesEnabled      bool          `json:"safe_zones_enabled" yaml:"safe_zones_enabled"`
}

// DefaultThresholds returns the stock monitoring parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProbeInterval:         DefaultProbeInterval,
		FailedProbeThreshold:  DefaultFailedProbeThreshold,
		SignalThresholdDbm:    DefaultSignalThresholdDbm,
		AutoReconnect:         true,
		ReconnectMaxAttempts:  DefaultReconnectMaxAttempts,
		ReconnectInitialDelay: DefaultInitialDelay,
		SafeZonesEnabled:      true,
	}
}

// Validate rejects out-of-range values.
func (t Thresholds) Validate() error {
	switch {
	case t.ProbeInterval <= 0:
		return fmt.Errorf("%w: probe interval must be positive, got %v", ErrInvalidThresholds, t.ProbeInterval)
	case t.FailedProbeThreshold < 1:
		return fmt.Errorf("%w: failed probe threshold must be at least 1, got %d", ErrInvalidThresholds, t.FailedProbeThreshold)
	case t.ReconnectMaxAttempts < 0:
		return fmt.Errorf("%w: reconnect attempts must be non-negative, got %d", ErrInvalidThresholds, t.ReconnectMaxAttempts)
	case t.ReconnectInitialDelay < 0:
		return fmt.Errorf("%w: reconnect delay must be non-negative, got %v", ErrInvalidThresholds, t.ReconnectInitialDelay)
	}
	return nil
}

// Tracker owns the connection State. All mutation goes through its lock,
// and every visible change is published to subscribers in order.
type Tracker struct {
	mu    sync.Mutex
	state State

	events *dispatcher
}

// NewTracker creates a tracker in the DISCONNECTED status.
func NewTracker() *Tracker {
	return &Tracker{events: newDispatcher()}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe registers for events. Events are delivered in publication order
// and never dropped; the returned cancel func unsubscribes and closes the
// channel.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	return t.events.subscribe()
}

// Close unsubscribes everyone.
func (t *Tracker) Close() {
	t.events.close()
}

// SetStatus sets status and message.
func (t *Tracker) SetStatus(status Status, message string) {
	t.update(func(s *State) {
		s.Status = status
		s.StatusMessage = message
	})
}

// SetMessage changes only the status message.
func (t *Tracker) SetMessage(message string) {
	t.update(func(s *State) { s.StatusMessage = message })
}

// SetAlarmActive records whether the alarm is sounding.
func (t *Tracker) SetAlarmActive(active bool) {
	t.update(func(s *State) { s.AlarmActive = active })
}

// update applies fn and publishes StatusChanged when a visible field moved.
func (t *Tracker) update(fn func(s *State)) State {
	return t.mutate(func(s *State) []Event {
		fn(s)
		return nil
	})
}

// mutate applies fn, publishes StatusChanged when a visible field moved and
// then publishes the events fn returned, all under one lock hold.
func (t *Tracker) mutate(fn func(s *State) []Event) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.state
	extra := fn(&t.state)
	if old.Status != t.state.Status ||
		old.StatusMessage != t.state.StatusMessage ||
		old.AlarmActive != t.state.AlarmActive ||
		peripheralID(old.Peripheral) != peripheralID(t.state.Peripheral) {
		t.publishLocked(Event{Type: EventStatusChanged})
	}
	for _, ev := range extra {
		t.publishLocked(ev)
	}
	return t.state
}

// publishLocked stamps ev with the current state and queues it. Called with
// t.mu held so that event order matches state order.
func (t *Tracker) publishLocked(ev Event) {
	ev.Time = time.Now()
	ev.State = t.state
	t.events.publish(ev)
}
