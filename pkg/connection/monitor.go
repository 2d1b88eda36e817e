package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	tlog "github.com/tether-alarm/tether-go/pkg/log"
)

// Monitor errors.
var (
	ErrNoPeripheral    = errors.New("no peripheral")
	ErrNoTransport     = errors.New("no transport")
	ErrInvalidInterval = errors.New("probe interval must be positive")
	ErrNotConnected    = errors.New("not connected")
)

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Transport performs the probes. Required.
	Transport Transport

	// Tracker receives state changes. A private tracker is created if nil.
	Tracker *Tracker

	// FailedProbeThreshold is the number of consecutive failed probes that
	// constitutes a loss. Defaults to DefaultFailedProbeThreshold.
	FailedProbeThreshold int

	// SignalThresholdDbm is the level below which WeakSignal is emitted.
	// It is used as given, so 0 means 0 dBm; callers without a configured
	// value pass DefaultSignalThresholdDbm.
	SignalThresholdDbm int

	// ProbeTimeout bounds a single probe. Zero uses the probe interval.
	ProbeTimeout time.Duration

	// Logger is the optional operational logger.
	Logger *slog.Logger

	// Trace receives probe and state events. Optional.
	Trace tlog.Logger
}

// Monitor runs the periodic liveness probe loop against one peripheral.
type Monitor struct {
	cfg     MonitorConfig
	tracker *Tracker
	trace   tlog.Logger

	mu         sync.Mutex
	gen        uint64
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	peripheral Peripheral

	dropped atomic.Int64
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.FailedProbeThreshold < 1 {
		cfg.FailedProbeThreshold = DefaultFailedProbeThreshold
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Monitor{
		cfg:     cfg,
		tracker: tracker,
		trace:   tlog.OrNoop(cfg.Trace),
	}
}

// Tracker returns the state tracker the monitor writes to.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Start begins probing p. The first probe fires immediately, then one every
// interval. A running loop is cancelled and joined first. Start resets the
// failure counter and sets status CONNECTED.
func (m *Monitor) Start(p Peripheral, interval time.Duration) error {
	if p == nil {
		return ErrNoPeripheral
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if m.cfg.Transport == nil {
		return ErrNoTransport
	}

	// Join any previous loop. Another Start may slip in between, so repeat
	// until the slot is free with the lock held.
	for {
		m.mu.Lock()
		if m.cancel == nil {
			break
		}
		cancel, done := m.cancel, m.done
		m.cancel, m.done = nil, nil
		m.running = false
		m.gen++
		m.mu.Unlock()

		cancel()
		<-done
	}

	// Disconnects queued while no loop was listening belong to an earlier
	// session; the first probe checks the link of this one.
	if n := drainDisconnects(m.cfg.Transport.Disconnects()); n > 0 {
		m.debugLog("discarded stale disconnects", "count", n)
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	m.running = true
	m.peripheral = p

	m.tracker.update(func(s *State) {
		s.Status = StatusConnected
		s.Peripheral = p
		s.FailedProbeCount = 0
		s.StatusMessage = "Connected"
	})
	m.mu.Unlock()

	m.debugLog("monitor started", "peripheral", p.ID(), "interval", interval)
	go m.run(ctx, gen, p, interval, done)
	return nil
}

// Stop cancels the probe loop and waits for it to exit. Results of probes
// still in flight are discarded. Stop is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	wasRunning := m.running
	m.running = false
	m.gen++
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if wasRunning {
		m.debugLog("monitor stopped")
	}
}

// Running reports whether the probe loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Peripheral returns the handle of the most recent Start.
func (m *Monitor) Peripheral() Peripheral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peripheral
}

// DroppedTicks returns the number of ticks skipped because a probe was
// still in flight.
func (m *Monitor) DroppedTicks() int64 {
	return m.dropped.Load()
}

func (m *Monitor) run(ctx context.Context, gen uint64, p Peripheral, interval time.Duration, done chan struct{}) {
	defer close(done)

	// One probe in flight per loop. The flag is per loop so that a stale
	// probe from an earlier run never blocks this one.
	var inflight atomic.Bool

	timeout := m.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = interval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	disconnects := m.cfg.Transport.Disconnects()

	m.tick(ctx, gen, p, timeout, &inflight)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, gen, p, timeout, &inflight)
		case dp, ok := <-disconnects:
			if !ok {
				disconnects = nil
				continue
			}
			if SamePeripheral(dp, p) {
				m.lose(gen, p, "Device disconnected")
				return
			}
		}
	}
}

func (m *Monitor) tick(ctx context.Context, gen uint64, p Peripheral, timeout time.Duration, inflight *atomic.Bool) {
	if !inflight.CompareAndSwap(false, true) {
		n := m.dropped.Add(1)
		m.debugLog("probe tick dropped", "dropped", n)
		m.trace.Log(tlog.Event{
			Timestamp:    time.Now(),
			PeripheralID: p.ID(),
			Component:    tlog.ComponentMonitor,
			Category:     tlog.CategoryProbe,
			Probe:        &tlog.ProbeEvent{Dropped: true},
		})
		return
	}

	// A loss cancels ctx before releasing the flag, so this catches ticks
	// that raced with the loss.
	if ctx.Err() != nil {
		inflight.Store(false)
		return
	}

	go func() {
		defer inflight.Store(false)
		m.probe(ctx, gen, p, timeout)
	}()
}

func (m *Monitor) probe(ctx context.Context, gen uint64, p Peripheral, timeout time.Duration) {
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, timeout)
	dbm, err := m.check(pctx, p)
	cancel()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}

	if err != nil {
		m.recordFailureLocked(p, err, elapsed)
		return
	}
	m.recordSuccessLocked(p, dbm, elapsed)
}

// check treats a link reported as down the same as a probe error.
func (m *Monitor) check(ctx context.Context, p Peripheral) (int, error) {
	connected, err := m.cfg.Transport.IsConnected(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("connection check: %w", err)
	}
	if !connected {
		return 0, ErrNotConnected
	}
	dbm, err := m.cfg.Transport.Probe(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("probe: %w", err)
	}
	return dbm, nil
}

func (m *Monitor) recordSuccessLocked(p Peripheral, dbm int, elapsed time.Duration) {
	now := time.Now()
	threshold := m.cfg.SignalThresholdDbm

	var weak bool
	m.tracker.mutate(func(s *State) []Event {
		s.FailedProbeCount = 0
		s.LastProbeTime = now
		s.SignalDbm = dbm

		events := []Event{{Type: EventSignalUpdated, SignalDbm: dbm}}
		if s.Status == StatusConnected && dbm < threshold {
			weak = true
			events = append(events, Event{Type: EventWeakSignal, SignalDbm: dbm})
		}
		return events
	})

	if weak {
		m.debugLog("weak signal", "dbm", dbm, "threshold", threshold)
	}
	m.trace.Log(tlog.Event{
		Timestamp:    now,
		PeripheralID: p.ID(),
		Component:    tlog.ComponentMonitor,
		Category:     tlog.CategoryProbe,
		Probe: &tlog.ProbeEvent{
			Success:   true,
			SignalDbm: dbm,
			Duration:  elapsed,
			Weak:      weak,
		},
	})
}

func (m *Monitor) recordFailureLocked(p Peripheral, err error, elapsed time.Duration) {
	now := time.Now()
	threshold := m.cfg.FailedProbeThreshold

	var lost bool
	var reason string
	st := m.tracker.mutate(func(s *State) []Event {
		s.FailedProbeCount++
		s.LastProbeTime = now
		if s.FailedProbeCount < threshold {
			return nil
		}
		lost = true
		reason = fmt.Sprintf("Connection lost after %d failed probes", s.FailedProbeCount)
		s.Status = StatusDisconnected
		s.StatusMessage = reason
		return []Event{{Type: EventConnectionLost, Reason: reason}}
	})

	m.debugLog("probe failed", "error", err, "failed", st.FailedProbeCount, "threshold", threshold)
	m.trace.Log(tlog.Event{
		Timestamp:    now,
		PeripheralID: p.ID(),
		Component:    tlog.ComponentMonitor,
		Category:     tlog.CategoryProbe,
		Probe: &tlog.ProbeEvent{
			FailedCount: st.FailedProbeCount,
			Duration:    elapsed,
		},
	})

	if lost {
		m.haltLocked(p, StatusConnected, reason)
	}
}

// lose handles an unsolicited disconnect for generation gen.
func (m *Monitor) lose(gen uint64, p Peripheral, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}

	var prev Status
	m.tracker.mutate(func(s *State) []Event {
		prev = s.Status
		s.Status = StatusDisconnected
		s.StatusMessage = reason
		return []Event{{Type: EventConnectionLost, Reason: reason}}
	})
	m.haltLocked(p, prev, reason)
}

// haltLocked ends the current generation after a loss. The loop goroutine
// exits on its own; Stop or Start will still join it.
func (m *Monitor) haltLocked(p Peripheral, prev Status, reason string) {
	m.gen++
	m.running = false
	if m.cancel != nil {
		m.cancel()
	}

	if m.cfg.Logger != nil {
		m.cfg.Logger.Warn("connection lost", "peripheral", p.ID(), "reason", reason)
	}
	m.trace.Log(tlog.Event{
		Timestamp:    time.Now(),
		PeripheralID: p.ID(),
		Component:    tlog.ComponentMonitor,
		Category:     tlog.CategoryState,
		StateChange: &tlog.StateChangeEvent{
			OldState: prev.String(),
			NewState: StatusDisconnected.String(),
			Reason:   reason,
		},
	})
}

// drainDisconnects empties ch without blocking and returns how many
// notifications it dropped.
func drainDisconnects(ch <-chan Peripheral) int {
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (m *Monitor) debugLog(msg string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Debug(msg, args...)
	}
}
