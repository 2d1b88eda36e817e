package alarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tether-alarm/tether-go/pkg/connection"
	tlog "github.com/tether-alarm/tether-go/pkg/log"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

// DefaultLocationTimeout bounds a location lookup during loss evaluation.
const DefaultLocationTimeout = 10 * time.Second

// Coordinator errors.
var (
	ErrMissingComponent = errors.New("coordinator: missing component")
	ErrTrackerMismatch  = errors.New("coordinator: monitor and reconnector use different trackers")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNoPeripheral     = errors.New("no peripheral to connect")
	ErrClosed           = errors.New("coordinator closed")
	errNoLocation       = errors.New("no location provider")
)

// Config wires a Coordinator.
type Config struct {
	Monitor     *connection.Monitor
	Reconnector *connection.Reconnector
	Transport   connection.Transport
	Actuator    Actuator

	// Location is consulted when safe zones are enabled. A nil provider
	// behaves like a failed lookup.
	Location LocationProvider

	// Zones supplies the safe zones. Nil means no zones.
	Zones ZoneSource

	Thresholds connection.Thresholds
	Settings   Settings

	// LocationTimeout defaults to DefaultLocationTimeout.
	LocationTimeout time.Duration

	// Logger is the optional operational logger.
	Logger *slog.Logger

	// Trace receives alarm decisions. Optional.
	Trace tlog.Logger
}

// episode tracks one loss from detection until it is resolved.
type episode struct {
	id         string
	peripheral connection.Peripheral
	decision   Decision

	// cancel and done are set while a reconnect runs for this episode.
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator turns connection losses into alarm decisions.
type Coordinator struct {
	cfg     Config
	tracker *connection.Tracker
	trace   tlog.Logger

	events      <-chan connection.Event
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	episode *episode
	last    Outcome
	closed  bool
}

// New creates a coordinator and subscribes it to the monitor's tracker.
// Events published before Run starts are queued.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Monitor == nil || cfg.Reconnector == nil || cfg.Transport == nil || cfg.Actuator == nil {
		return nil, ErrMissingComponent
	}
	if cfg.Monitor.Tracker() != cfg.Reconnector.Tracker() {
		return nil, ErrTrackerMismatch
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = DefaultLocationTimeout
	}

	tracker := cfg.Monitor.Tracker()
	events, unsubscribe := tracker.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:         cfg,
		tracker:     tracker,
		trace:       tlog.OrNoop(cfg.Trace),
		events:      events,
		unsubscribe: unsubscribe,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Tracker returns the shared connection state tracker.
func (c *Coordinator) Tracker() *connection.Tracker {
	return c.tracker
}

// Thresholds returns the session thresholds.
func (c *Coordinator) Thresholds() connection.Thresholds {
	return c.cfg.Thresholds
}

// Run consumes connection events until ctx is cancelled or the coordinator
// is closed.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.ctx.Done():
			return nil
		case ev, ok := <-c.events:
			if !ok {
				return nil
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, ev connection.Event) {
	switch ev.Type {
	case connection.EventConnectionLost:
		c.HandleConnectionLost(ctx, ev.State.Peripheral, ev.Reason)
	case connection.EventWeakSignal:
		c.debugLog("weak signal", "dbm", ev.SignalDbm)
	}
}

// HandleConnectionLost evaluates a loss of p and acts on the decision.
// Run calls it for every ConnectionLost event.
func (c *Coordinator) HandleConnectionLost(ctx context.Context, p connection.Peripheral, reason string) Outcome {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}
	}
	if active := c.episode; active != nil {
		out := Outcome{
			Decision:  DecisionIgnored,
			EpisodeID: active.id,
			Reason:    "episode already active",
			Time:      time.Now(),
		}
		c.last = out
		c.mu.Unlock()

		if c.cfg.Logger != nil {
			c.cfg.Logger.Info("connection lost ignored, episode active", "episode", active.id)
		}
		c.traceOutcome(out, p, nil)
		return out
	}
	ep := &episode{id: uuid.NewString(), peripheral: p}
	c.episode = ep
	c.mu.Unlock()

	if c.cfg.Logger != nil {
		c.cfg.Logger.Warn("connection lost", "episode", ep.id, "reason", reason)
	}

	ctx = tlog.WithEpisode(ctx, ep.id)
	out, loc := c.evaluate(ctx)
	out.EpisodeID = ep.id

	c.mu.Lock()
	if c.episode != ep || c.closed {
		// Disconnect or Close ended the episode during the lookup.
		out.Decision = DecisionIgnored
		out.Reason = "episode ended during evaluation"
		c.last = out
		c.mu.Unlock()

		c.debugLog("connection lost dropped, episode ended", "episode", ep.id)
		c.traceOutcome(out, p, loc)
		return out
	}
	ep.decision = out.Decision
	c.last = out
	c.mu.Unlock()

	c.traceOutcome(out, p, loc)

	switch out.Decision {
	case DecisionSuppressed:
		c.tracker.SetMessage("In safe zone: " + out.ZoneName)
		if c.cfg.Logger != nil {
			c.cfg.Logger.Info("alarm suppressed", "episode", ep.id, "zone", out.ZoneName)
		}
	case DecisionTriggered:
		c.raise(ctx, c.cfg.Settings)
		if c.cfg.Logger != nil {
			c.cfg.Logger.Warn("alarm triggered", "episode", ep.id, "reason", out.Reason)
		}
		if c.cfg.Thresholds.AutoReconnect {
			c.startReconnect(ep)
		}
	}
	return out
}

// evaluate decides between trigger and suppress. Every failure resolves
// to trigger.
func (c *Coordinator) evaluate(ctx context.Context) (Outcome, *zone.Location) {
	out := Outcome{Decision: DecisionTriggered, Time: time.Now()}

	if !c.cfg.Thresholds.SafeZonesEnabled {
		out.Reason = "safe zones disabled"
		return out, nil
	}

	loc, err := c.lookupLocation(ctx)
	if err != nil {
		out.Reason = "location unavailable: " + err.Error()
		if c.cfg.Logger != nil {
			c.cfg.Logger.Warn("location lookup failed, failing safe", "error", err)
		}
		return out, nil
	}

	var zones []zone.SafeZone
	if c.cfg.Zones != nil {
		zones = c.cfg.Zones.Zones()
	}
	if z := zone.FindContainingZone(loc, zones); z != nil {
		out.Decision = DecisionSuppressed
		out.Reason = "inside safe zone"
		out.ZoneID = z.ID
		out.ZoneName = z.Name
		return out, &loc
	}

	out.Reason = "outside safe zones"
	return out, &loc
}

// lookupLocation enforces the timeout even when the provider ignores ctx.
func (c *Coordinator) lookupLocation(ctx context.Context) (zone.Location, error) {
	if c.cfg.Location == nil {
		return zone.Location{}, errNoLocation
	}

	lctx, cancel := context.WithTimeout(ctx, c.cfg.LocationTimeout)
	defer cancel()

	type result struct {
		loc zone.Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		loc, err := c.cfg.Location.CurrentLocation(lctx)
		ch <- result{loc, err}
	}()

	select {
	case r := <-ch:
		return r.loc, r.err
	case <-lctx.Done():
		return zone.Location{}, fmt.Errorf("location lookup: %w", lctx.Err())
	}
}

// raise triggers the actuator. The alarm counts as requested even when
// the actuator reports an error.
func (c *Coordinator) raise(ctx context.Context, s Settings) {
	if err := c.cfg.Actuator.Trigger(ctx, s); err != nil {
		if c.cfg.Logger != nil {
			c.cfg.Logger.Error("alarm actuator failed", "error", err)
		}
		c.traceError(ctx, "trigger alarm", err)
	}
	c.tracker.SetAlarmActive(true)
}

func (c *Coordinator) startReconnect(ep *episode) {
	c.mu.Lock()
	if c.closed || c.episode != ep {
		c.mu.Unlock()
		c.debugLog("reconnect skipped, episode ended", "episode", ep.id)
		return
	}
	ctx, cancel := context.WithCancel(tlog.WithEpisode(c.ctx, ep.id))
	done := make(chan struct{})
	ep.cancel, ep.done = cancel, done
	c.wg.Add(1)
	c.mu.Unlock()

	th := c.cfg.Thresholds
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer cancel()

		np, err := c.cfg.Reconnector.AttemptReconnect(ctx, ep.peripheral, th.ReconnectMaxAttempts, th.ReconnectInitialDelay)

		c.mu.Lock()
		ep.cancel, ep.done = nil, nil
		c.mu.Unlock()

		if err != nil {
			if c.cfg.Logger != nil {
				c.cfg.Logger.Error("automatic reconnect failed, alarm stays active", "episode", ep.id, "error", err)
			}
			return
		}
		// Disconnect or Close won the race; leave the link to them.
		if ctx.Err() != nil {
			return
		}
		_ = c.recover(ctx, ep, np)
	}()
}

// recover resolves ep, if any, and resumes monitoring on np. The episode
// ends before the monitor restarts so that a fresh loss is evaluated.
func (c *Coordinator) recover(ctx context.Context, ep *episode, np connection.Peripheral) error {
	if ep != nil {
		if err := c.cfg.Actuator.Stop(ctx); err != nil && c.cfg.Logger != nil {
			c.cfg.Logger.Error("alarm stop failed", "error", err)
		}
		c.tracker.SetAlarmActive(false)
		c.endEpisode(ep)

		c.trace.Log(tlog.Event{
			Timestamp:    time.Now(),
			PeripheralID: np.ID(),
			EpisodeID:    ep.id,
			Component:    tlog.ComponentCoordinator,
			Category:     tlog.CategoryAlarm,
			Alarm:        &tlog.AlarmEvent{Decision: tlog.AlarmStopped, Reason: "reconnected"},
		})
	}

	if err := c.cfg.Monitor.Start(np, c.cfg.Thresholds.ProbeInterval); err != nil {
		if c.cfg.Logger != nil {
			c.cfg.Logger.Error("monitor restart failed", "error", err)
		}
		c.traceError(ctx, "restart monitor", err)
		return err
	}
	return nil
}

func (c *Coordinator) endEpisode(ep *episode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.episode == ep {
		c.episode = nil
	}
}

// Connect establishes the link to p and starts monitoring. A pending
// episode, such as a suppressed loss or an exhausted reconnect, is resolved
// once the link is up.
func (c *Coordinator) Connect(ctx context.Context, p connection.Peripheral) error {
	if p == nil {
		return ErrNoPeripheral
	}
	if c.isClosed() {
		return ErrClosed
	}
	if c.cfg.Monitor.Running() {
		return ErrAlreadyConnected
	}
	if c.Reconnecting() {
		return connection.ErrReconnectInProgress
	}

	c.tracker.SetStatus(connection.StatusConnecting, "Connecting...")
	np, err := c.cfg.Transport.Connect(ctx, p)
	if err != nil {
		c.tracker.SetStatus(connection.StatusDisconnected, "Connection failed: "+err.Error())
		c.traceError(ctx, "connect", err)
		return fmt.Errorf("connect %s: %w", p.ID(), err)
	}
	if np == nil {
		np = p
	}

	c.mu.Lock()
	ep := c.episode
	c.mu.Unlock()
	return c.recover(ctx, ep, np)
}

// Reconnect runs a user-initiated reconnect, typically after a terminal
// failure or a suppressed episode. It blocks until the sequence finishes.
func (c *Coordinator) Reconnect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.cfg.Monitor.Running() {
		return ErrAlreadyConnected
	}

	p := c.tracker.Snapshot().Peripheral
	if p == nil {
		p = c.cfg.Monitor.Peripheral()
	}
	if p == nil {
		return ErrNoPeripheral
	}

	c.mu.Lock()
	ep := c.episode
	c.mu.Unlock()
	if ep != nil {
		ctx = tlog.WithEpisode(ctx, ep.id)
	}

	th := c.cfg.Thresholds
	np, err := c.cfg.Reconnector.AttemptReconnect(ctx, p, th.ReconnectMaxAttempts, th.ReconnectInitialDelay)
	if err != nil {
		return err
	}

	return c.recover(ctx, ep, np)
}

// TestAlarm sounds the alarm outside any episode.
func (c *Coordinator) TestAlarm(ctx context.Context) error {
	s := c.cfg.Settings
	s.Message = "Test alarm"
	if err := c.cfg.Actuator.Trigger(ctx, s); err != nil {
		return fmt.Errorf("test alarm: %w", err)
	}
	c.tracker.SetAlarmActive(true)
	return nil
}

// StopAlarm silences the alarm. A triggered episode with no reconnect in
// flight is resolved, so the next loss is evaluated afresh.
func (c *Coordinator) StopAlarm(ctx context.Context) error {
	err := c.cfg.Actuator.Stop(ctx)
	c.tracker.SetAlarmActive(false)

	c.mu.Lock()
	ep := c.episode
	if ep != nil && ep.decision == DecisionTriggered && ep.done == nil {
		c.episode = nil
	}
	c.mu.Unlock()

	if ep != nil {
		c.trace.Log(tlog.Event{
			Timestamp:    time.Now(),
			PeripheralID: peripheralID(ep.peripheral),
			EpisodeID:    ep.id,
			Component:    tlog.ComponentCoordinator,
			Category:     tlog.CategoryAlarm,
			Alarm:        &tlog.AlarmEvent{Decision: tlog.AlarmStopped, Reason: "stopped by user"},
		})
	}
	if err != nil {
		return fmt.Errorf("stop alarm: %w", err)
	}
	return nil
}

// Disconnect stops monitoring, cancels any automatic reconnect and tears
// the link down. It never raises ConnectionLost.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.cfg.Monitor.Stop()

	c.mu.Lock()
	ep := c.episode
	var cancel context.CancelFunc
	var done chan struct{}
	if ep != nil {
		cancel, done = ep.cancel, ep.done
	}
	c.episode = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	p := c.tracker.Snapshot().Peripheral
	var err error
	if p != nil {
		err = c.cfg.Transport.Disconnect(ctx, p)
	}
	c.tracker.SetStatus(connection.StatusDisconnected, "Disconnected")
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", p.ID(), err)
	}
	return nil
}

// LastDecision returns the most recent decision.
func (c *Coordinator) LastDecision() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.Decision
}

// LastOutcome returns the most recent decision with its details.
func (c *Coordinator) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// EpisodeActive reports whether a loss episode is unresolved.
func (c *Coordinator) EpisodeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.episode != nil
}

// Reconnecting reports whether an automatic reconnect is running.
func (c *Coordinator) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.episode != nil && c.episode.done != nil
}

// Close cancels in-flight reconnects, stops monitoring and waits for
// background work. Close is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.cfg.Monitor.Stop()
	c.unsubscribe()
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) traceOutcome(out Outcome, p connection.Peripheral, loc *zone.Location) {
	ev := &tlog.AlarmEvent{
		Decision: out.Decision.trace(),
		Reason:   out.Reason,
		ZoneID:   out.ZoneID,
		ZoneName: out.ZoneName,
	}
	if loc != nil {
		lat, lon := loc.Latitude, loc.Longitude
		ev.Latitude, ev.Longitude = &lat, &lon
	}
	c.trace.Log(tlog.Event{
		Timestamp:    out.Time,
		PeripheralID: peripheralID(p),
		EpisodeID:    out.EpisodeID,
		Component:    tlog.ComponentCoordinator,
		Category:     tlog.CategoryAlarm,
		Alarm:        ev,
	})
}

func (c *Coordinator) traceError(ctx context.Context, op string, err error) {
	c.trace.Log(tlog.Event{
		Timestamp: time.Now(),
		EpisodeID: tlog.EpisodeFrom(ctx),
		Component: tlog.ComponentCoordinator,
		Category:  tlog.CategoryError,
		Error:     &tlog.ErrorEventData{Message: err.Error(), Context: op},
	})
}

func (c *Coordinator) debugLog(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, args...)
	}
}

func peripheralID(p connection.Peripheral) string {
	if p == nil {
		return ""
	}
	return p.ID()
}
