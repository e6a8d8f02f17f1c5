// Package events provides a small typed observer registry.
//
// The document model and the conversation engine each own a Bus and publish
// state-change notifications on it. Listeners (the UI, the archiver, tests)
// subscribe and receive an unsubscribe handle. The bus makes no assumption
// about how many listeners exist or what they do with events.
package events

import (
	"sort"
	"sync"
)

// Bus delivers events of type E to every registered listener.
// Delivery is synchronous and in subscription order. Bus is safe for
// concurrent use.
type Bus[E any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(E)
}

// NewBus creates an empty bus.
func NewBus[E any]() *Bus[E] {
	return &Bus[E]{listeners: make(map[uint64]func(E))}
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is a no-op.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to all current listeners. Listeners may subscribe or
// unsubscribe from within a callback.
func (b *Bus[E]) Publish(e E) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(E), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Len returns the number of registered listeners.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
