// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the in-process status stream between the orchestrators and
// their observers (API event stream, tray, log sink).
//
// Publishing never blocks. Each subscriber owns a bounded queue; when it is
// full the oldest intermediate event is dropped. Terminal events are never
// dropped, so a subscriber registered before a session ends always sees its
// result.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/peersync/internal/log"
	"github.com/ManuGH/peersync/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue size.
const DefaultBuffer = 64

const dropLogEvery = 100

var (
	ErrClosed = errors.New("subscription closed")

	dropCount atomic.Uint64
)

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// New creates a Bus with the given per-subscriber buffer (DefaultBuffer when <= 0).
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Publish delivers e to every current subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(e)
	}
}

// Subscribe registers a new subscriber. Events published before this call
// are not replayed.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:    b,
		limit:  b.buffer,
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	if b.closed {
		s.closed = true
	} else {
		b.subs[s] = struct{}{}
	}
	n := len(b.subs)
	b.mu.Unlock()
	metrics.SetBusSubscribers(n)
	return s
}

// Subscribers returns the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscriber. Queued events can still be drained.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()
	for s := range subs {
		s.markClosed()
	}
	metrics.SetBusSubscribers(0)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	n := len(b.subs)
	b.mu.Unlock()
	metrics.SetBusSubscribers(n)
}

// Subscription is one observer's queue.
type Subscription struct {
	bus    *Bus
	limit  int
	notify chan struct{}

	mu      sync.Mutex
	queue   []Event
	dropped uint64
	closed  bool
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.limit {
		if !s.dropOldestIntermediate() && !e.Terminal() {
			// Queue holds only terminal events; the new intermediate one goes.
			s.dropped++
			s.mu.Unlock()
			recordDrop("full")
			return
		}
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// dropOldestIntermediate must be called with s.mu held.
func (s *Subscription) dropOldestIntermediate() bool {
	for i, q := range s.queue {
		if q.Terminal() {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.dropped++
		recordDrop("overflow")
		return true
	}
	return false
}

func recordDrop(reason string) {
	metrics.IncBusDrop(reason)
	count := dropCount.Add(1)
	if count%dropLogEvery == 0 {
		log.L().Warn().
			Str("reason", reason).
			Uint64("dropped", count).
			Msg("status bus dropped intermediate events for a slow subscriber")
	}
}

// Recv returns the next event, blocking until one is available, the
// subscription is closed and drained (ErrClosed) or ctx ends.
func (s *Subscription) Recv(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Dropped returns how many events this subscriber lost.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription. Pending Recv calls return ErrClosed
// once the queue is drained.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.markClosed()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
