package bus

import (
	"context"
	"sync"

	"github.com/sharedmem/controller/pkg/xlog"
)

const ringSize = 256

// Signal tells a subscriber how to interpret the value returned by Next.
type Signal int

const (
	SignalValue Signal = iota
	SignalLag
	SignalClosed
)

// Bus is a multi-producer, multi-subscriber broadcast of Events over a
// fixed-size ring. Producers never block; a subscriber that falls behind
// the ring loses the oldest entries and is told so via SignalLag rather
// than silently skipping (spec §4.1, §9).
type Bus struct {
	mu     sync.Mutex
	ring   [ringSize]Event
	next   uint64 // index of the next write slot, monotonically increasing
	closed bool
	waitCh chan struct{} // closed and replaced whenever next advances

	log *xlog.Logger
}

func New(log *xlog.Logger) *Bus {
	return &Bus{
		waitCh: make(chan struct{}),
		log:    log.Named("bus"),
	}
}

// Publish appends an event to the ring and wakes any subscribers blocked
// in Next. Never blocks the caller.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.ring[b.next%ringSize] = e
	b.next++
	old := b.waitCh
	b.waitCh = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// Close terminates every subscriber with SignalClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	old := b.waitCh
	b.mu.Unlock()
	close(old)
}

// Subscription holds an independent read cursor into the bus.
type Subscription struct {
	bus    *Bus
	cursor uint64
}

// Subscribe returns a Subscription starting at the current write head —
// it only sees events published after this call.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Subscription{bus: b, cursor: b.next}
}

// Next blocks until an event is available, the subscriber has lagged off
// the back of the ring, the bus closed, or ctx is done.
func (s *Subscription) Next(ctx context.Context) (Event, Signal, error) {
	b := s.bus
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return Event{}, SignalClosed, nil
		}
		if s.cursor < b.next {
			// Detect lag: our cursor fell more than ringSize behind.
			if b.next-s.cursor > ringSize {
				s.cursor = b.next - ringSize
				b.mu.Unlock()
				return Event{}, SignalLag, nil
			}
			e := b.ring[s.cursor%ringSize]
			s.cursor++
			b.mu.Unlock()
			return e, SignalValue, nil
		}
		wait := b.waitCh
		b.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			return Event{}, SignalClosed, ctx.Err()
		}
	}
}
