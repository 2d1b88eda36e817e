package feed

import (
	"time"

	"github.com/tether-alarm/tether-go/pkg/connection"
)

// MessageSnapshot is the type of the message sent on connect.
const MessageSnapshot = "SNAPSHOT"

// Message is the JSON envelope sent to clients. Type is "SNAPSHOT" or a
// connection event type such as "CONNECTION_LOST".
type Message struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	State     Status    `json:"state"`
	SignalDbm int       `json:"signal_dbm,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Status is the JSON form of connection.State.
type Status struct {
	Status           string    `json:"status"`
	Message          string    `json:"message,omitempty"`
	Peripheral       string    `json:"peripheral,omitempty"`
	SignalDbm        int       `json:"signal_dbm"`
	FailedProbeCount int       `json:"failed_probe_count"`
	LastProbeTime    time.Time `json:"last_probe_time"`
	AlarmActive      bool      `json:"alarm_active"`
}

// StatusFrom converts a tracker snapshot.
func StatusFrom(s connection.State) Status {
	st := Status{
		Status:           s.Status.String(),
		Message:          s.StatusMessage,
		SignalDbm:        s.SignalDbm,
		FailedProbeCount: s.FailedProbeCount,
		LastProbeTime:    s.LastProbeTime,
		AlarmActive:      s.AlarmActive,
	}
	if s.Peripheral != nil {
		st.Peripheral = s.Peripheral.ID()
	}
	return st
}

// MessageFrom converts a tracker event.
func MessageFrom(ev connection.Event) Message {
	return Message{
		Type:      ev.Type.String(),
		Time:      ev.Time,
		State:     StatusFrom(ev.State),
		SignalDbm: ev.SignalDbm,
		Reason:    ev.Reason,
	}
}

func snapshotMessage(s connection.State) Message {
	return Message{Type: MessageSnapshot, Time: time.Now(), State: StatusFrom(s)}
}
