package connection

import (
	"sync"
	"time"
)

// EventType identifies the kind of connection event.
type EventType uint8

const (
	// EventStatusChanged carries the new State after a visible change.
	EventStatusChanged EventType = iota

	// EventConnectionLost is emitted once per loss episode.
	EventConnectionLost

	// EventSignalUpdated carries the signal of a successful probe.
	EventSignalUpdated

	// EventWeakSignal is an advisory: the link is up but below threshold.
	EventWeakSignal
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventStatusChanged:
		return "STATUS_CHANGED"
	case EventConnectionLost:
		return "CONNECTION_LOST"
	case EventSignalUpdated:
		return "SIGNAL_UPDATED"
	case EventWeakSignal:
		return "WEAK_SIGNAL"
	default:
		return "UNKNOWN"
	}
}

// Event is published by the Tracker.
type Event struct {
	Type EventType
	Time time.Time

	// State is the snapshot at the moment of publication.
	State State

	// SignalDbm is set for SignalUpdated and WeakSignal.
	SignalDbm int

	// Reason is set for ConnectionLost.
	Reason string
}

// eventBuffer is the channel capacity of each subscription. The queue
// behind it is unbounded, so publishers never block.
const eventBuffer = 16

type dispatcher struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[int]*subscriber)}
}

func (d *dispatcher) subscribe() (<-chan Event, func()) {
	s := &subscriber{
		out:    make(chan Event, eventBuffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	id := d.nextID
	d.nextID++
	d.subs[id] = s
	d.mu.Unlock()

	go s.run()

	var once sync.Once
	return s.out, func() {
		once.Do(func() {
			d.mu.Lock()
			_, ok := d.subs[id]
			delete(d.subs, id)
			d.mu.Unlock()
			// close already released it otherwise.
			if ok {
				close(s.done)
			}
		})
	}
}

func (d *dispatcher) publish(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs {
		s.push(ev)
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = make(map[int]*subscriber)
	d.mu.Unlock()

	for _, s := range subs {
		close(s.done)
	}
}

// subscriber pumps its queue into out in FIFO order.
type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
