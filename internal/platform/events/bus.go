// Package events provides an in-process change bus. Repositories stay dumb;
// services publish a change after every successful write and interested
// sessions subscribe per topic. Delivery is best-effort and non-blocking:
// local state is a projection of the store, so a dropped event is corrected
// by the next one or by a re-read.
package events

import (
	"sync"
	"time"
)

// Event is a single change notification.
type Event struct {
	Topic string
	Kind  string // e.g. "created", "updated", "reviewed"
	At    time.Time
	Data  interface{}
}

// Publisher is the write side of the bus. Services depend on this interface
// so tests can capture published events.
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to per-topic subscriber channels.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]chan Event
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers interest in a topic. The returned cancel function
// removes the subscription and closes the channel; it is idempotent.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	ch := make(chan Event, 16)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[topic]; ok {
				if c, ok := set[id]; ok {
					delete(set, id)
					close(c)
				}
				if len(set) == 0 {
					delete(b.subs, topic)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber of e.Topic. Subscribers with a full
// buffer are skipped rather than blocked.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Topic] {
		select {
		case ch <- e:
		default:
			// Slow subscriber; it will catch up on the next event.
		}
	}
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Fanout publishes every event to multiple publishers, e.g. the in-process
// bus and the websocket bridge.
type Fanout []Publisher

func (f Fanout) Publish(e Event) {
	for _, p := range f {
		p.Publish(e)
	}
}
