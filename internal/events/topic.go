// Package events provides the typed publish/subscribe topics the stores use
// to reach collaborators that hold no store reference. It replaces the usual
// DOM-event fan-out with compile-time-checked payloads.
package events

import (
	"sync"

	"go.uber.org/zap"
)

type handler[T any] struct {
	id uint64
	fn func(T)
}

// Topic fans a single event type out to its subscribers. Publish is
// synchronous; subscribers run in registration order on the publisher's
// goroutine, and a panicking subscriber is isolated and logged.
type Topic[T any] struct {
	name   string
	logger *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	handlers []handler[T]
}

// NewTopic constructs a named topic. The name only appears in logs.
func NewTopic[T any](name string, logger *zap.Logger) *Topic[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Topic[T]{name: name, logger: logger}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.handlers = append(t.handlers, handler[T]{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, h := range t.handlers {
			if h.id == id {
				t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber.
func (t *Topic[T]) Publish(event T) {
	t.mu.Lock()
	handlers := make([]handler[T], len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()

	for _, h := range handlers {
		t.deliver(h.fn, event)
	}
}

func (t *Topic[T]) deliver(fn func(T), event T) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("event subscriber panicked",
				zap.String("topic", t.name),
				zap.Any("panic", r))
		}
	}()
	fn(event)
}
