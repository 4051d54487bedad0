// package events provides a typed publish/subscribe bus.
package events

import "sync"

// Bus delivers payloads of type P to subscribers of a topic of type K.
//
// The zero value is ready to use. Handlers run synchronously on the publishing goroutine.
type Bus[K comparable, P any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[K]map[uint64]func(P)
	all    map[uint64]func(K, P)
}

// New creates an empty [Bus].
func New[K comparable, P any]() *Bus[K, P] {
	return &Bus[K, P]{}
}

// Subscribe registers fn for topic and returns a function that removes it.
// Calling the returned function more than once is safe.
func (b *Bus[K, P]) Subscribe(topic K, fn func(P)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[K]map[uint64]func(P))
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]func(P))
	}

	b.nextID++
	id := b.nextID
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
	}
}

// SubscribeAll registers fn for every topic.
func (b *Bus[K, P]) SubscribeAll(fn func(K, P)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.all == nil {
		b.all = make(map[uint64]func(K, P))
	}

	b.nextID++
	id := b.nextID
	b.all[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers payload to the subscribers registered when Publish was called.
func (b *Bus[K, P]) Publish(topic K, payload P) {
	b.mu.RLock()
	handlers := make([]func(P), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		handlers = append(handlers, fn)
	}
	wildcard := make([]func(K, P), 0, len(b.all))
	for _, fn := range b.all {
		wildcard = append(wildcard, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
	for _, fn := range wildcard {
		fn(topic, payload)
	}
}

// Len reports the number of subscribers for topic.
func (b *Bus[K, P]) Len(topic K) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
