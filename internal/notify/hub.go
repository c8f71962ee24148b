// Package notify provides an explicit observer list for state changes.
package notify

import "sync"

const subscriptionBuffer = 16

// Hub fans out values of type T to subscribers.
// Publish never blocks: a subscriber that does not keep up misses updates.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// Subscription receives published values on Ch until Close is called.
type Subscription[T any] struct {
	Ch <-chan T

	ch   chan T
	hub  *Hub[T]
	once sync.Once
}

// Subscribe registers a new subscriber. Call Close when done.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, subscriptionBuffer)
	s := &Subscription[T]{Ch: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	if h.subs == nil {
		h.subs = make(map[*Subscription[T]]struct{})
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers v to every subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- v:
		default:
			// drop if receiver is slow
		}
	}
}

// Close closes every subscription; later subscriptions are born closed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}

// Close unsubscribes and closes Ch.
func (s *Subscription[T]) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
