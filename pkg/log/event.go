package log

import "time"

// Event is a single trace record. Exactly one payload pointer is set.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// PeripheralID identifies the monitored peripheral (e.g. its address).
	PeripheralID string `cbor:"2,keyasint,omitempty"`

	// EpisodeID correlates all events of one loss episode (UUID).
	EpisodeID string `cbor:"3,keyasint,omitempty"`

	// Component that emitted the event.
	Component Component `cbor:"4,keyasint"`

	// Category classifies the payload.
	Category Category `cbor:"5,keyasint"`

	Probe       *ProbeEvent       `cbor:"6,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"7,keyasint,omitempty"`
	Alarm       *AlarmEvent       `cbor:"8,keyasint,omitempty"`
	Reconnect   *ReconnectEvent   `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"`
}

// Component identifies the engine part that emitted an event.
type Component uint8

const (
	ComponentMonitor     Component = 0
	ComponentReconnector Component = 1
	ComponentCoordinator Component = 2
	ComponentTransport   Component = 3
)

// String returns the component name.
func (c Component) String() string {
	switch c {
	case ComponentMonitor:
		return "MONITOR"
	case ComponentReconnector:
		return "RECONNECTOR"
	case ComponentCoordinator:
		return "COORDINATOR"
	case ComponentTransport:
		return "TRANSPORT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event payload.
type Category uint8

const (
	CategoryProbe     Category = 0
	CategoryState     Category = 1
	CategoryAlarm     Category = 2
	CategoryReconnect Category = 3
	CategoryError     Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryProbe:
		return "PROBE"
	case CategoryState:
		return "STATE"
	case CategoryAlarm:
		return "ALARM"
	case CategoryReconnect:
		return "RECONNECT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ProbeEvent captures one liveness probe.
type ProbeEvent struct {
	// Success is true when the probe returned a signal reading.
	Success bool `cbor:"1,keyasint"`

	// SignalDbm is the reported signal strength (valid on success).
	SignalDbm int `cbor:"2,keyasint,omitempty"`

	// FailedCount is the consecutive failure count after this probe.
	FailedCount int `cbor:"3,keyasint,omitempty"`

	// Duration is how long the probe took. Stored as nanoseconds.
	Duration time.Duration `cbor:"4,keyasint,omitempty"`

	// Dropped marks a tick that was skipped because a probe was in flight.
	Dropped bool `cbor:"5,keyasint,omitempty"`

	// Weak marks a successful probe below the signal threshold.
	Weak bool `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures a connection status transition.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint,omitempty"`
	NewState string `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// AlarmEvent captures an alarm policy decision.
type AlarmEvent struct {
	Decision AlarmDecision `cbor:"1,keyasint"`

	// Reason explains the decision (e.g. "location unavailable").
	Reason string `cbor:"2,keyasint,omitempty"`

	// ZoneID and ZoneName are set when the alarm was suppressed by a safe zone.
	ZoneID   string `cbor:"3,keyasint,omitempty"`
	ZoneName string `cbor:"4,keyasint,omitempty"`

	// Latitude and Longitude are set when a location fix was obtained.
	Latitude  *float64 `cbor:"5,keyasint,omitempty"`
	Longitude *float64 `cbor:"6,keyasint,omitempty"`
}

// AlarmDecision is the outcome of evaluating a connection loss.
type AlarmDecision uint8

const (
	AlarmTriggered  AlarmDecision = 0
	AlarmSuppressed AlarmDecision = 1
	AlarmIgnored    AlarmDecision = 2
	AlarmStopped    AlarmDecision = 3
)

// String returns the decision name.
func (d AlarmDecision) String() string {
	switch d {
	case AlarmTriggered:
		return "TRIGGERED"
	case AlarmSuppressed:
		return "SUPPRESSED"
	case AlarmIgnored:
		return "IGNORED"
	case AlarmStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ReconnectEvent captures one step of a reconnection sequence.
type ReconnectEvent struct {
	// Attempt is the zero-based attempt index.
	Attempt int `cbor:"1,keyasint"`

	// MaxAttempts is the configured attempt budget.
	MaxAttempts int `cbor:"2,keyasint"`

	// Delay is the backoff wait before this attempt. Stored as nanoseconds.
	Delay time.Duration `cbor:"3,keyasint,omitempty"`

	Outcome ReconnectOutcome `cbor:"4,keyasint"`

	// Detail carries the connect error, if any.
	Detail string `cbor:"5,keyasint,omitempty"`
}

// ReconnectOutcome classifies a reconnect step.
type ReconnectOutcome uint8

const (
	ReconnectWaiting   ReconnectOutcome = 0
	ReconnectFailed    ReconnectOutcome = 1
	ReconnectSucceeded ReconnectOutcome = 2
	ReconnectExhausted ReconnectOutcome = 3
	ReconnectCancelled ReconnectOutcome = 4
)

// String returns the outcome name.
func (o ReconnectOutcome) String() string {
	switch o {
	case ReconnectWaiting:
		return "WAITING"
	case ReconnectFailed:
		return "FAILED"
	case ReconnectSucceeded:
		return "SUCCEEDED"
	case ReconnectExhausted:
		return "EXHAUSTED"
	case ReconnectCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any component.
type ErrorEventData struct {
	Message string `cbor:"1,keyasint"`

	// Context describes the operation being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
