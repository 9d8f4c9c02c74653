package api

import (
	"sync"
)

// Event is a schedule change fanned out to SSE and websocket clients.
type Event struct {
	Type string
	Data map[string]any
}

// Broker is the in-process fanout used when no REDIS_URL is set.
// Channels are keyed by tenant; every board for a tenant sees the
// same stream.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(tenantID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[tenantID] == nil {
		b.subs[tenantID] = map[chan Event]struct{}{}
	}
	b.subs[tenantID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(tenantID string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[tenantID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, tenantID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish drops events for slow consumers rather than blocking.
func (b *Broker) Publish(tenantID string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[tenantID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
