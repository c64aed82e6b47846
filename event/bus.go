package event

import (
	"sync"
)

// Bus is an ordered set of handlers. A handler is registered at most once,
// and handlers are compared by identity, so H must be an interface whose
// dynamic values are comparable (typically pointers).
type Bus[H comparable] struct {
	handlersMu sync.RWMutex
	handlers   []H
}

func NewBus[H comparable]() *Bus[H] {
	return &Bus[H]{
		handlersMu: sync.RWMutex{},
		handlers:   nil,
	}
}

// AddHandler registers h. It returns false if h was already registered.
func (b *Bus[H]) AddHandler(h H) bool {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	for _, existing := range b.handlers {
		if existing == h {
			return false
		}
	}
	b.handlers = append(b.handlers, h)
	return true
}

// RemoveHandler unregisters h. It returns false if h was not registered.
func (b *Bus[H]) RemoveHandler(h H) bool {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	for i, existing := range b.handlers {
		if existing == h {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus[H]) Contains(h H) bool {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()

	for _, existing := range b.handlers {
		if existing == h {
			return true
		}
	}
	return false
}

// Handlers returns the registered handlers in registration order.
func (b *Bus[H]) Handlers() []H {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()

	handlers := make([]H, len(b.handlers))
	copy(handlers, b.handlers)
	return handlers
}

// Notify calls fn for every handler in registration order, on the calling
// goroutine. Handlers registered or removed during Notify do not affect the
// current round.
func (b *Bus[H]) Notify(fn func(h H)) {
	// Copy handlers to prevent race conditions
	handlers := b.Handlers()

	// Execute handlers outside the lock
	for _, h := range handlers {
		fn(h)
	}
}
