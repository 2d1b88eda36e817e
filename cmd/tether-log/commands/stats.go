package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	tlog "github.com/tether-alarm/tether-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByComponent map[tlog.Component]int
	EventsByCategory  map[tlog.Category]int
	AlarmDecisions    map[tlog.AlarmDecision]int
	ReconnectOutcomes map[tlog.ReconnectOutcome]int
	Peripherals       map[string]*PeripheralStats
	Episodes          map[string]*EpisodeStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// PeripheralStats holds probe statistics for a single peripheral.
type PeripheralStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	Probes       int
	FailedProbes int
	DroppedTicks int
	WeakSignals  int
	MinDbm       int
	MaxDbm       int
	sumDbm       int
}

// AvgDbm returns the mean signal over successful probes.
func (p *PeripheralStats) AvgDbm() float64 {
	ok := p.Probes - p.FailedProbes
	if ok <= 0 {
		return 0
	}
	return float64(p.sumDbm) / float64(ok)
}

// EpisodeStats summarizes one loss episode.
type EpisodeStats struct {
	Start      time.Time
	End        time.Time
	Events     int
	Decision   *tlog.AlarmDecision
	Reconnects int
	Recovered  bool
}

func newStats() *Stats {
	return &Stats{
		EventsByComponent: make(map[tlog.Component]int),
		EventsByCategory:  make(map[tlog.Category]int),
		AlarmDecisions:    make(map[tlog.AlarmDecision]int),
		ReconnectOutcomes: make(map[tlog.ReconnectOutcome]int),
		Peripherals:       make(map[string]*PeripheralStats),
		Episodes:          make(map[string]*EpisodeStats),
	}
}

func (s *Stats) add(event tlog.Event) {
	s.TotalEvents++
	s.EventsByComponent[event.Component]++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.PeripheralID != "" {
		s.addPeripheral(event)
	}
	if event.EpisodeID != "" {
		s.addEpisode(event)
	}

	switch {
	case event.Alarm != nil:
		s.AlarmDecisions[event.Alarm.Decision]++
	case event.Reconnect != nil:
		s.ReconnectOutcomes[event.Reconnect.Outcome]++
	case event.Error != nil:
		s.Errors++
	}
}

func (s *Stats) addPeripheral(event tlog.Event) {
	p, ok := s.Peripherals[event.PeripheralID]
	if !ok {
		p = &PeripheralStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Peripherals[event.PeripheralID] = p
	}
	p.Events++
	if event.Timestamp.After(p.LastSeen) {
		p.LastSeen = event.Timestamp
	}

	probe := event.Probe
	if probe == nil {
		return
	}
	if probe.Dropped {
		p.DroppedTicks++
		return
	}
	p.Probes++
	if !probe.Success {
		p.FailedProbes++
		return
	}
	if probe.Weak {
		p.WeakSignals++
	}
	if p.Probes-p.FailedProbes == 1 || probe.SignalDbm < p.MinDbm {
		p.MinDbm = probe.SignalDbm
	}
	if p.Probes-p.FailedProbes == 1 || probe.SignalDbm > p.MaxDbm {
		p.MaxDbm = probe.SignalDbm
	}
	p.sumDbm += probe.SignalDbm
}

func (s *Stats) addEpisode(event tlog.Event) {
	ep, ok := s.Episodes[event.EpisodeID]
	if !ok {
		ep = &EpisodeStats{Start: event.Timestamp, End: event.Timestamp}
		s.Episodes[event.EpisodeID] = ep
	}
	ep.Events++
	if event.Timestamp.Before(ep.Start) {
		ep.Start = event.Timestamp
	}
	if event.Timestamp.After(ep.End) {
		ep.End = event.Timestamp
	}
	if event.Alarm != nil && event.Alarm.Decision != tlog.AlarmStopped && ep.Decision == nil {
		d := event.Alarm.Decision
		ep.Decision = &d
	}
	if event.Reconnect != nil {
		switch event.Reconnect.Outcome {
		case tlog.ReconnectFailed, tlog.ReconnectSucceeded:
			ep.Reconnects++
		}
		if event.Reconnect.Outcome == tlog.ReconnectSucceeded {
			ep.Recovered = true
		}
	}
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := tlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Tether Trace Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Component:")
	for _, c := range []tlog.Component{tlog.ComponentMonitor, tlog.ComponentReconnector, tlog.ComponentCoordinator, tlog.ComponentTransport} {
		if count := stats.EventsByComponent[c]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []tlog.Category{tlog.CategoryProbe, tlog.CategoryState, tlog.CategoryAlarm, tlog.CategoryReconnect, tlog.CategoryError} {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", c.String()+":", count)
		}
	}

	if len(stats.AlarmDecisions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Alarm Decisions:")
		for _, d := range []tlog.AlarmDecision{tlog.AlarmTriggered, tlog.AlarmSuppressed, tlog.AlarmIgnored, tlog.AlarmStopped} {
			if count := stats.AlarmDecisions[d]; count > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", d.String()+":", count)
			}
		}
	}

	if len(stats.ReconnectOutcomes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Reconnect Steps:")
		for _, o := range []tlog.ReconnectOutcome{tlog.ReconnectWaiting, tlog.ReconnectFailed, tlog.ReconnectSucceeded, tlog.ReconnectExhausted, tlog.ReconnectCancelled} {
			if count := stats.ReconnectOutcomes[o]; count > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", o.String()+":", count)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Peripherals: %d\n", len(stats.Peripherals))
	ids := make([]string, 0, len(stats.Peripherals))
	for id := range stats.Peripherals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := stats.Peripherals[id]
		fmt.Fprintf(w, "  [%s] %d events, %d probes (%d failed, %d dropped)\n",
			id, p.Events, p.Probes, p.FailedProbes, p.DroppedTicks)
		if p.Probes > p.FailedProbes {
			fmt.Fprintf(w, "           Signal: min %d, max %d, avg %.1f dBm, %d weak\n",
				p.MinDbm, p.MaxDbm, p.AvgDbm(), p.WeakSignals)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Episodes: %d\n", len(stats.Episodes))
	eps := make([]string, 0, len(stats.Episodes))
	for id := range stats.Episodes {
		eps = append(eps, id)
	}
	sort.Slice(eps, func(i, j int) bool {
		return stats.Episodes[eps[i]].Start.Before(stats.Episodes[eps[j]].Start)
	})
	for _, id := range eps {
		ep := stats.Episodes[id]
		decision := "NONE"
		if ep.Decision != nil {
			decision = ep.Decision.String()
		}
		outcome := "not recovered"
		if ep.Recovered {
			outcome = "recovered"
		}
		fmt.Fprintf(w, "  [%s] %s, %d reconnect attempts, %s, duration %s\n",
			shortenID(id), decision, ep.Reconnects, outcome, ep.End.Sub(ep.Start).Round(time.Millisecond))
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
