package actuator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tether-alarm/tether-go/pkg/alarm"
)

// DefaultRingInterval is the pause between bells while the alarm sounds.
const DefaultRingInterval = 2 * time.Second

// Console writes the alert to a terminal and rings the bell until stopped.
type Console struct {
	out      io.Writer
	interval time.Duration

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

var _ alarm.Actuator = (*Console)(nil)

// NewConsole creates a console actuator writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, interval: DefaultRingInterval}
}

// Trigger prints the notification and, with sound enabled, starts ringing.
func (c *Console) Trigger(_ context.Context, s alarm.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return nil
	}
	c.active = true

	if s.NotificationEnabled {
		fmt.Fprintf(c.out, "\n*** %s: %s ***\n", s.NotificationTitle, s.Message)
	}
	if s.VibrationEnabled {
		fmt.Fprintf(c.out, "[vibrate %v]\n", s.VibrationDuration)
	}
	if s.SoundEnabled && s.SoundVolume > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.cancel, c.done = cancel, done
		go c.ring(ctx, done)
	}
	return nil
}

// Stop silences the bell. It is safe to call when idle.
func (c *Console) Stop(context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	wasActive := c.active
	c.cancel, c.done = nil, nil
	c.active = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if wasActive {
		fmt.Fprintln(c.out, "[alarm stopped]")
	}
	return nil
}

// IsActive reports whether the alarm is sounding.
func (c *Console) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Console) ring(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		fmt.Fprint(c.out, "\a")
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
