package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors trace events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event as one structured record.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("component", event.Component.String()),
		slog.String("category", event.Category.String()),
	}
	if event.PeripheralID != "" {
		attrs = append(attrs, slog.String("peripheral", event.PeripheralID))
	}
	if event.EpisodeID != "" {
		attrs = append(attrs, slog.String("episode", event.EpisodeID))
	}

	switch {
	case event.Probe != nil:
		p := event.Probe
		if p.Dropped {
			attrs = append(attrs, slog.Bool("dropped", true))
			break
		}
		attrs = append(attrs,
			slog.Bool("success", p.Success),
			slog.Int("failed_count", p.FailedCount),
			slog.Duration("duration", p.Duration),
		)
		if p.Success {
			attrs = append(attrs, slog.Int("signal_dbm", p.SignalDbm))
		}
		if p.Weak {
			attrs = append(attrs, slog.Bool("weak", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Alarm != nil:
		attrs = append(attrs, slog.String("decision", event.Alarm.Decision.String()))
		if event.Alarm.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Alarm.Reason))
		}
		if event.Alarm.ZoneName != "" {
			attrs = append(attrs, slog.String("zone", event.Alarm.ZoneName))
		}
	case event.Reconnect != nil:
		r := event.Reconnect
		attrs = append(attrs,
			slog.Int("attempt", r.Attempt),
			slog.Int("max_attempts", r.MaxAttempts),
			slog.String("outcome", r.Outcome.String()),
		)
		if r.Delay > 0 {
			attrs = append(attrs, slog.Duration("delay", r.Delay))
		}
		if r.Detail != "" {
			attrs = append(attrs, slog.String("detail", r.Detail))
		}
	case event.Error != nil:
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
