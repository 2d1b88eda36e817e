package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

type testPeripheral string

func (p testPeripheral) ID() string { return string(p) }

// stubTransport is a testify-backed Transport.
type stubTransport struct {
	mock.Mock
	disc chan Peripheral
}

func (s *stubTransport) Connect(ctx context.Context, p Peripheral) (Peripheral, error) {
	ret := s.Called(ctx, p)
	var np Peripheral
	if ret.Get(0) != nil {
		np = ret.Get(0).(Peripheral)
	}
	return np, ret.Error(1)
}

func (s *stubTransport) Probe(ctx context.Context, p Peripheral) (int, error) {
	ret := s.Called(ctx, p)
	return ret.Int(0), ret.Error(1)
}

func (s *stubTransport) IsConnected(ctx context.Context, p Peripheral) (bool, error) {
	ret := s.Called(ctx, p)
	return ret.Bool(0), ret.Error(1)
}

func (s *stubTransport) Disconnect(ctx context.Context, p Peripheral) error {
	return s.Called(ctx, p).Error(0)
}

func (s *stubTransport) Disconnects() <-chan Peripheral { return s.disc }

// fakeTransport delegates probes to a function so tests can script
// per-call behavior and block.
type fakeTransport struct {
	mu     sync.Mutex
	probe  func(n int) (int, error)
	calls  int
	linkUp bool
	disc   chan Peripheral
}

func newFakeTransport(probe func(n int) (int, error)) *fakeTransport {
	return &fakeTransport{probe: probe, linkUp: true, disc: make(chan Peripheral, 1)}
}

func (f *fakeTransport) Connect(_ context.Context, p Peripheral) (Peripheral, error) { return p, nil }
func (f *fakeTransport) Disconnect(context.Context, Peripheral) error               { return nil }
func (f *fakeTransport) Disconnects() <-chan Peripheral                              { return f.disc }

func (f *fakeTransport) IsConnected(context.Context, Peripheral) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkUp, nil
}

func (f *fakeTransport) Probe(context.Context, Peripheral) (int, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	fn := f.probe
	f.mu.Unlock()
	return fn(n)
}

func (f *fakeTransport) probeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// waitForEvent returns the first event of type typ, failing after timeout.
func waitForEvent(t *testing.T, ch <-chan Event, typ EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed waiting for %v", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", typ)
		}
	}
}

// collectEvents drains ch for d.
func collectEvents(ch <-chan Event, d time.Duration) []Event {
	var out []Event
	deadline := time.After(d)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

func countType(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
