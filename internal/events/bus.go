package events

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the ring buffer size used when none is configured.
const DefaultCapacity = 1000

// ErrLagged is returned by Subscription.Next/Poll when a subscriber's
// cursor has fallen behind the oldest event still held in the ring
// buffer. The subscriber has missed events; its cursor is reset to the
// oldest available sequence so it can keep reading.
var ErrLagged = errors.New("events: subscriber lagged behind ring buffer")

type entry struct {
	seq uint64
	evt Event
}

// Bus is a fixed-capacity, lossy, in-memory event ring buffer. Publish is
// O(1) and never blocks; once the buffer is full, the oldest event is
// evicted to make room for the newest. Waiting subscribers are woken by
// closing signal, which is replaced on every publish.
type Bus struct {
	mu     sync.Mutex
	cap    int
	buf    []entry
	next   uint64 // sequence number the next published event will receive
	signal chan struct{}
}

// NewBus constructs a Bus with the given ring capacity. A capacity <= 0
// uses DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		cap:    capacity,
		buf:    make([]entry, 0, capacity),
		signal: make(chan struct{}),
	}
}

// Publish appends an event to the ring, evicting the oldest entry if the
// buffer is full, and wakes any subscribers blocked in Next.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	seq := b.next
	b.next++

	if len(b.buf) == b.cap {
		b.buf = b.buf[1:]
	}
	b.buf = append(b.buf, entry{seq: seq, evt: e})

	old := b.signal
	b.signal = make(chan struct{})
	b.mu.Unlock()

	close(old)
}

// Subscription is a per-reader cursor into the bus.
type Subscription struct {
	bus    *Bus
	cursor uint64
}

// Subscribe returns a Subscription positioned at the bus's current head,
// so the first call to Next only returns events published afterward.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Subscription{bus: b, cursor: b.next}
}

// oldestSeq returns the sequence number of the oldest event still held,
// or the next sequence to be assigned if the buffer is empty. Caller must
// hold b.mu.
func (b *Bus) oldestSeq() uint64 {
	if len(b.buf) == 0 {
		return b.next
	}
	return b.buf[0].seq
}

// drain collects every buffered event at or after the subscription's
// cursor and advances it. Caller must hold b.bus.mu. Returns ErrLagged if
// the cursor had fallen behind the oldest retained event.
func (s *Subscription) drain() ([]Event, error) {
	b := s.bus

	lagged := s.cursor < b.oldestSeq()
	if lagged {
		s.cursor = b.oldestSeq()
	}

	var out []Event
	for _, e := range b.buf {
		if e.seq >= s.cursor {
			out = append(out, e.evt)
		}
	}
	s.cursor = b.next

	if lagged {
		return out, ErrLagged
	}
	return out, nil
}

// Next blocks until at least one event is available past the
// subscription's cursor, then returns every such event in order and
// advances the cursor past them. It returns ctx.Err() if ctx is canceled
// first, or ErrLagged (alongside whatever events it could recover) if the
// cursor fell outside the ring's retention window.
func (s *Subscription) Next(ctx context.Context) ([]Event, error) {
	b := s.bus

	for {
		b.mu.Lock()
		if s.cursor < b.next {
			out, err := s.drain()
			b.mu.Unlock()
			return out, err
		}
		wait := b.signal
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Poll is a non-blocking variant of Next: it returns immediately with
// whatever events are available (possibly none, possibly with ErrLagged),
// without waiting for new ones.
func (s *Subscription) Poll() ([]Event, error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.cursor >= b.next {
		return nil, nil
	}
	return s.drain()
}
