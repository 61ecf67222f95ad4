// Package events provides the in-process pub/sub bus that feeds the
// telemetry push channel. Publishing never blocks: each subscriber has a
// bounded buffer and loses its oldest events when it falls behind.
package events

import (
	"sync"
	"time"
)

// Event names pushed to subscribers and over the WebSocket channel.
const (
	StatusUpdated  = "status.updated"
	BacklogUpdated = "backlog.updated"
	FeatureUpdated = "feature.updated"
	SessionStarted = "session.started"
	SessionEnded   = "session.ended"
	CostUpdate     = "cost.update"
	ProgressUpdate = "progress.update"
	AlertCreated   = "alert.created"
)

// Event is one bus message.
type Event struct {
	Name      string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultBufferSize is the per-subscriber buffer capacity.
const DefaultBufferSize = 256

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	bus *Bus
	ch  chan Event

	mu      sync.Mutex
	dropped uint64
}

// Events returns the subscriber's receive channel. The channel is closed
// when the subscription is cancelled or the bus shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber has lost to backpressure.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cancel removes the subscription from the bus and closes its channel.
func (s *Subscription) Cancel() {
	s.bus.unsubscribe(s)
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	bufferSize int
}

// NewBus returns a Bus with the default per-subscriber buffer size.
func NewBus() *Bus {
	return &Bus{
		subs:       make(map[*Subscription]struct{}),
		bufferSize: DefaultBufferSize,
	}
}

// NewBusWithBuffer returns a Bus with a custom buffer size (min 1).
func NewBusWithBuffer(size int) *Bus {
	if size < 1 {
		size = 1
	}
	b := NewBus()
	b.bufferSize = size
	return b
}

// Subscribe registers a new subscriber. Returns nil after Close.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	sub := &Subscription{bus: b, ch: make(chan Event, b.bufferSize)}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers an event to every subscriber. A full subscriber buffer
// drops its oldest event to make room, so the publisher never blocks.
func (b *Bus) Publish(name string, data any) {
	ev := Event{Name: name, Data: data, Timestamp: time.Now().UTC()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		for {
			select {
			case sub.ch <- ev:
			default:
				// Buffer full: evict the oldest and retry once. The drain
				// can race with the consumer, so loop until the send lands.
				select {
				case <-sub.ch:
					sub.mu.Lock()
					sub.dropped++
					sub.mu.Unlock()
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
// Subsequent Publish and Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
