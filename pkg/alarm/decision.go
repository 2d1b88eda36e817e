package alarm

import (
	"time"

	tlog "github.com/tether-alarm/tether-go/pkg/log"
)

// Decision is the outcome of evaluating a connection loss.
type Decision uint8

const (
	// DecisionNone means no loss has been evaluated yet.
	DecisionNone Decision = iota

	// DecisionTriggered means the alarm was raised.
	DecisionTriggered

	// DecisionSuppressed means the user was inside an enabled safe zone.
	DecisionSuppressed

	// DecisionIgnored means the loss arrived during an active episode.
	DecisionIgnored
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "NONE"
	case DecisionTriggered:
		return "TRIGGERED"
	case DecisionSuppressed:
		return "SUPPRESSED"
	case DecisionIgnored:
		return "IGNORED"
	default:
		return "UNKNOWN"
	}
}

func (d Decision) trace() tlog.AlarmDecision {
	switch d {
	case DecisionSuppressed:
		return tlog.AlarmSuppressed
	case DecisionIgnored:
		return tlog.AlarmIgnored
	default:
		return tlog.AlarmTriggered
	}
}

// Outcome records one decision.
type Outcome struct {
	Decision  Decision
	EpisodeID string
	Reason    string
	Time      time.Time

	// ZoneID and ZoneName are set for DecisionSuppressed.
	ZoneID   string
	ZoneName string
}
