// Package commands implements the tether-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	tlog "github.com/tether-alarm/tether-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Component *tlog.Component
	Category  *tlog.Category
	Episode   string
}

func (f ViewFilter) filter() tlog.Filter {
	return tlog.Filter{
		Component: f.Component,
		Category:  f.Category,
		EpisodeID: f.Episode,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event tlog.Event) {
	// Header line: timestamp [peripheral] [ep:id] COMPONENT Category
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	periph := event.PeripheralID
	if periph == "" {
		periph = "-"
	}

	fmt.Fprintf(w, "%s [%s]", ts, periph)
	if event.EpisodeID != "" {
		fmt.Fprintf(w, " [ep:%s]", shortenID(event.EpisodeID))
	}
	fmt.Fprintf(w, " %s %s\n", event.Component.String(), eventLabel(event))

	switch {
	case event.Probe != nil:
		formatProbeDetails(w, event.Probe)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Alarm != nil:
		formatAlarmDetails(w, event.Alarm)
	case event.Reconnect != nil:
		formatReconnectDetails(w, event.Reconnect)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// eventLabel names the payload carried by event.
func eventLabel(event tlog.Event) string {
	switch {
	case event.Probe != nil:
		return "Probe"
	case event.StateChange != nil:
		return "State"
	case event.Alarm != nil:
		return event.Alarm.Decision.String()
	case event.Reconnect != nil:
		return event.Reconnect.Outcome.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of an episode ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatProbeDetails(w io.Writer, p *tlog.ProbeEvent) {
	switch {
	case p.Dropped:
		fmt.Fprintln(w, "  Dropped: probe still in flight")
		return
	case p.Success:
		fmt.Fprintf(w, "  Signal: %d dBm", p.SignalDbm)
		if p.Weak {
			fmt.Fprint(w, " (weak)")
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintf(w, "  Failed: %d consecutive\n", p.FailedCount)
	}
	if p.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(p.Duration))
	}
}

func formatStateChangeDetails(w io.Writer, sc *tlog.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatAlarmDetails(w io.Writer, a *tlog.AlarmEvent) {
	if a.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", a.Reason)
	}
	if a.ZoneName != "" || a.ZoneID != "" {
		fmt.Fprintf(w, "  Zone: %s (%s)\n", a.ZoneName, a.ZoneID)
	}
	if a.Latitude != nil && a.Longitude != nil {
		fmt.Fprintf(w, "  Location: %.6f, %.6f\n", *a.Latitude, *a.Longitude)
	}
}

func formatReconnectDetails(w io.Writer, r *tlog.ReconnectEvent) {
	fmt.Fprintf(w, "  Attempt: %d/%d\n", r.Attempt+1, r.MaxAttempts)
	if r.Delay > 0 {
		fmt.Fprintf(w, "  Delay: %s\n", r.Delay)
	}
	if r.Detail != "" {
		fmt.Fprintf(w, "  Detail: %s\n", r.Detail)
	}
}

func formatErrorDetails(w io.Writer, err *tlog.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseComponentFlag parses a component string from a command-line flag (case-insensitive).
func ParseComponentFlag(s string) (tlog.Component, error) {
	switch strings.ToLower(s) {
	case "monitor":
		return tlog.ComponentMonitor, nil
	case "reconnector":
		return tlog.ComponentReconnector, nil
	case "coordinator":
		return tlog.ComponentCoordinator, nil
	case "transport":
		return tlog.ComponentTransport, nil
	default:
		return 0, fmt.Errorf("invalid component: %s (must be monitor, reconnector, coordinator, or transport)", s)
	}
}

// ParseCategoryFlag parses a category string from a command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (tlog.Category, error) {
	switch strings.ToLower(s) {
	case "probe":
		return tlog.CategoryProbe, nil
	case "state":
		return tlog.CategoryState, nil
	case "alarm":
		return tlog.CategoryAlarm, nil
	case "reconnect":
		return tlog.CategoryReconnect, nil
	case "error":
		return tlog.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be probe, state, alarm, reconnect, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := tlog.NewFilteredReader(path, filter.filter())
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}
