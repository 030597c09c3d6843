package bus

import (
	"strings"
	"sync"
	"time"
)

// Event is a domain event published on the bus.
//
// Kinds are dot-namespaced: "sdk.*" for inbound feed events, "message.*"
// and "room.*" for reconciled state changes, "client.*" for connection
// lifecycle, "presence.*" for typing/online updates.
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}

// Bus is an in-process publish/subscribe bus with namespace-prefix
// filtering. Delivery is non-blocking: a subscriber whose buffer is full
// misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
// An empty At is filled with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if strings.HasPrefix(evt.Kind, s.prefix) {
			select {
			case s.ch <- evt:
			default:
				// Slow subscriber; drop rather than block the publisher.
			}
		}
	}
}

// Subscribe registers a subscriber for all kinds starting with prefix and
// returns the delivery channel plus an unsubscribe function.
func (b *Bus) Subscribe(prefix string, buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
