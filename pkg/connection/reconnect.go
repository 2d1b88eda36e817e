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

// Reconnect errors.
var (
	ErrReconnectInProgress = errors.New("reconnect already in progress")
	ErrReconnectExhausted  = errors.New("reconnect attempts exhausted")
	ErrReconnectorClosed   = errors.New("reconnector closed")
	ErrInvalidAttempts     = errors.New("reconnect attempts must be non-negative")
)

// ReconnectorConfig configures a Reconnector.
type ReconnectorConfig struct {
	// Transport performs the connects. Required.
	Transport Transport

	// Tracker receives state changes. A private tracker is created if nil.
	Tracker *Tracker

	// ConnectTimeout bounds a single connect attempt. Zero means only the
	// caller's context applies.
	ConnectTimeout time.Duration

	// After returns a channel that fires after d. Defaults to time.After.
	After func(d time.Duration) <-chan time.Time

	// Logger is the optional operational logger.
	Logger *slog.Logger

	// Trace receives reconnect events. Optional.
	Trace tlog.Logger
}

// Reconnector drives a bounded, sequential, exponentially backed-off
// sequence of reconnect attempts. At most one sequence runs at a time.
type Reconnector struct {
	cfg     ReconnectorConfig
	tracker *Tracker
	trace   tlog.Logger
	after   func(d time.Duration) <-chan time.Time

	inFlight atomic.Bool
	attempt  atomic.Int32

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewReconnector creates an idle reconnector.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}
	after := cfg.After
	if after == nil {
		after = time.After
	}
	return &Reconnector{
		cfg:     cfg,
		tracker: tracker,
		trace:   tlog.OrNoop(cfg.Trace),
		after:   after,
		closeCh: make(chan struct{}),
	}
}

// Tracker returns the state tracker the reconnector writes to.
func (r *Reconnector) Tracker() *Tracker {
	return r.tracker
}

// InProgress reports whether a reconnect sequence is running.
func (r *Reconnector) InProgress() bool {
	return r.inFlight.Load()
}

// Attempts returns the 1-based number of the attempt currently running,
// or 0 when idle.
func (r *Reconnector) Attempts() int {
	return int(r.attempt.Load())
}

// Close aborts any running sequence and rejects future ones.
func (r *Reconnector) Close() {
	r.closeOnce.Do(func() { close(r.closeCh) })
}

// AttemptReconnect runs up to maxAttempts connects against p. Attempt i
// waits initialDelay*2^i first. On success the new handle is published
// through the tracker with status CONNECTED and returned.
//
// A call made while another sequence is running returns
// ErrReconnectInProgress immediately and changes nothing.
func (r *Reconnector) AttemptReconnect(ctx context.Context, p Peripheral, maxAttempts int, initialDelay time.Duration) (Peripheral, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.debugLog("reconnect rejected, already in progress")
		return nil, ErrReconnectInProgress
	}
	defer func() {
		r.attempt.Store(0)
		r.inFlight.Store(false)
	}()

	if p == nil {
		return nil, ErrNoPeripheral
	}
	if r.cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	if maxAttempts < 0 {
		return nil, ErrInvalidAttempts
	}
	select {
	case <-r.closeCh:
		return nil, ErrReconnectorClosed
	default:
	}

	r.tracker.SetStatus(StatusReconnecting, "Reconnecting...")
	r.debugLog("reconnect started", "peripheral", p.ID(), "max_attempts", maxAttempts, "initial_delay", initialDelay)

	backoff := NewBackoff(initialDelay)
	for i := 0; i < maxAttempts; i++ {
		r.attempt.Store(int32(i + 1))
		delay := backoff.Next()
		r.traceStep(ctx, p, i, maxAttempts, delay, tlog.ReconnectWaiting, "")

		if err := r.wait(ctx, delay); err != nil {
			return nil, r.cancelled(ctx, p, i, maxAttempts, err)
		}

		np, err := r.connect(ctx, p)
		if err == nil {
			r.tracker.update(func(s *State) {
				s.Status = StatusConnected
				s.Peripheral = np
				s.FailedProbeCount = 0
				s.StatusMessage = "Reconnected"
			})
			r.traceStep(ctx, np, i, maxAttempts, 0, tlog.ReconnectSucceeded, "")
			if r.cfg.Logger != nil {
				r.cfg.Logger.Info("reconnected", "peripheral", np.ID(), "attempt", i+1)
			}
			return np, nil
		}

		// A cancelled context surfaces as a connect error; report it as
		// cancellation rather than a failed attempt.
		if ctx.Err() != nil {
			return nil, r.cancelled(ctx, p, i, maxAttempts, ctx.Err())
		}

		r.traceStep(ctx, p, i, maxAttempts, 0, tlog.ReconnectFailed, err.Error())
		if r.cfg.Logger != nil {
			r.cfg.Logger.Warn("reconnect attempt failed", "attempt", i+1, "max_attempts", maxAttempts, "error", err)
		}
	}

	msg := fmt.Sprintf("reconnect failed after %d attempts", maxAttempts)
	r.tracker.SetStatus(StatusFailed, msg)
	r.traceStep(ctx, p, maxAttempts, maxAttempts, 0, tlog.ReconnectExhausted, msg)
	if r.cfg.Logger != nil {
		r.cfg.Logger.Error("reconnect exhausted", "peripheral", p.ID(), "attempts", maxAttempts)
	}
	return nil, fmt.Errorf("%w: %d attempts", ErrReconnectExhausted, maxAttempts)
}

func (r *Reconnector) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.closeCh:
			return ErrReconnectorClosed
		default:
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closeCh:
		return ErrReconnectorClosed
	case <-r.after(d):
		return nil
	}
}

// connect succeeds only when the transport reports the new link as up.
func (r *Reconnector) connect(ctx context.Context, p Peripheral) (Peripheral, error) {
	cctx := ctx
	if r.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()
	}

	np, err := r.cfg.Transport.Connect(cctx, p)
	if err != nil {
		return nil, err
	}
	if np == nil {
		np = p
	}
	ok, err := r.cfg.Transport.IsConnected(cctx, np)
	if err != nil {
		return nil, fmt.Errorf("connection check: %w", err)
	}
	if !ok {
		return nil, ErrNotConnected
	}
	return np, nil
}

func (r *Reconnector) cancelled(ctx context.Context, p Peripheral, i, maxAttempts int, err error) error {
	r.tracker.SetStatus(StatusFailed, "Reconnect cancelled")
	r.traceStep(ctx, p, i, maxAttempts, 0, tlog.ReconnectCancelled, err.Error())
	r.debugLog("reconnect cancelled", "attempt", i+1, "error", err)
	return err
}

func (r *Reconnector) traceStep(ctx context.Context, p Peripheral, i, maxAttempts int, delay time.Duration, outcome tlog.ReconnectOutcome, detail string) {
	r.trace.Log(tlog.Event{
		Timestamp:    time.Now(),
		PeripheralID: peripheralID(p),
		EpisodeID:    tlog.EpisodeFrom(ctx),
		Component:    tlog.ComponentReconnector,
		Category:     tlog.CategoryReconnect,
		Reconnect: &tlog.ReconnectEvent{
			Attempt:     i,
			MaxAttempts: maxAttempts,
			Delay:       delay,
			Outcome:     outcome,
			Detail:      detail,
		},
	})
}

func (r *Reconnector) debugLog(msg string, args ...any) {
	if r.cfg.Logger != nil {
		r.cfg.Logger.Debug(msg, args...)
	}
}
