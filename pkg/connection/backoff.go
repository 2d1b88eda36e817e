package connection

import (
	"math"
	"sync"
	"time"
)

// DefaultInitialDelay is the reconnect delay before the first attempt.
const DefaultInitialDelay = 2 * time.Second

// Backoff calculates pure exponential delays: initial, 2*initial, 4*initial...
// There is no jitter and no upper bound other than saturation at the largest
// representable duration.
type Backoff struct {
	mu sync.Mutex

	initial  time.Duration
	attempts int
}

// NewBackoff creates a calculator starting at initial. Negative values are
// treated as zero.
func NewBackoff(initial time.Duration) *Backoff {
	if initial < 0 {
		initial = 0
	}
	return &Backoff{initial: initial}
}

// Delay returns the wait before zero-based attempt i.
func (b *Backoff) Delay(i int) time.Duration {
	return delayFor(b.initial, i)
}

// Next returns the delay for the current attempt and advances.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := delayFor(b.initial, b.attempts)
	b.attempts++
	return d
}

// Peek returns the delay for the current attempt without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return delayFor(b.initial, b.attempts)
}

// Reset rewinds to the first attempt.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Schedule returns the first n delays starting at initial.
func Schedule(initial time.Duration, n int) []time.Duration {
	if n <= 0 {
		return nil
	}
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = delayFor(initial, i)
	}
	return out
}

func delayFor(initial time.Duration, i int) time.Duration {
	if initial <= 0 || i < 0 {
		return 0
	}
	if i >= 63 || initial > time.Duration(math.MaxInt64>>uint(i)) {
		return time.Duration(math.MaxInt64)
	}
	return initial << uint(i)
}
