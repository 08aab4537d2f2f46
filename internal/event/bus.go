package event

import (
	"context"
	"maps"
	"sync"
)

// Handler receives published events. Handlers run on the publisher's
// goroutine; anything slow must hand off internally.
type Handler func(ctx context.Context, e *Event)

// Bus is a synchronous in-process fan-out. Subscribers registered at startup
// receive every event in publish order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber in registration order.
// Each handler gets its own Event and its own Resource map; Payload bytes
// are shared and must be treated as read-only.
func (b *Bus) Publish(ctx context.Context, e *Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		cp := *e
		cp.Resource = maps.Clone(e.Resource)
		h(ctx, &cp)
	}
}
