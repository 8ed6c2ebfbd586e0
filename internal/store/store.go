// Package store implements the observable snapshot holder shared by the
// catalog and cart state containers. A Store owns exactly one immutable
// snapshot; every mutation replaces the whole snapshot and fans the change
// out to subscribers.
package store

import (
	"sync"

	"go.uber.org/zap"
)

// Listener receives the committed snapshot together with the one it replaced.
type Listener[S any] func(next, prev S)

type subscription[S any] struct {
	id uint64
	fn Listener[S]
}

// Store holds an immutable snapshot of type S. Snapshots handed out are
// produced by the clone function, so callers can never reach the live state.
// Mutations happen exclusively through Commit; subscribers observe fully
// committed snapshots only.
type Store[S any] struct {
	clone  func(S) S
	logger *zap.Logger

	mu     sync.Mutex
	state  S
	nextID uint64
	subs   []subscription[S]
}

// New constructs a Store seeded with the provided initial snapshot. The clone
// function must produce a deep copy; a nil clone falls back to value copy,
// which is only safe for snapshot types without reference fields.
func New[S any](initial S, clone func(S) S, logger *zap.Logger) *Store[S] {
	if clone == nil {
		clone = func(s S) S { return s }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[S]{
		clone:  clone,
		logger: logger,
		state:  clone(initial),
	}
}

// State returns a deep copy of the current snapshot.
func (s *Store[S]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.state)
}

// Subscribe registers a listener and returns its unsubscribe function. The
// listener is invoked once immediately with (current, current) so late
// subscribers do not need a separate initial read, and thereafter on every
// committed mutation with (next, prev).
func (s *Store[S]) Subscribe(fn Listener[S]) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription[S]{id: id, fn: fn})
	current := s.clone(s.state)
	s.mu.Unlock()

	s.dispatch(fn, current, s.clone(current))

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Commit replaces the current snapshot and notifies every subscriber in
// registration order. The caller hands over ownership of next; the store
// never mutates it afterwards.
func (s *Store[S]) Commit(next S) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	subs := make([]subscription[S], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.dispatch(sub.fn, s.clone(next), s.clone(prev))
	}
}

// Update applies mutate to the current snapshot as one atomic
// read-modify-write: no other Update or Commit can interleave between the
// read and the swap, so concurrent mutators cannot erase each other's
// changes. mutate receives a deep copy and returns the replacement snapshot;
// returning false aborts without committing. Subscribers are notified
// outside the lock, so mutate must not call back into the store.
func (s *Store[S]) Update(mutate func(cur S) (S, bool)) (S, bool) {
	s.mu.Lock()
	next, ok := mutate(s.clone(s.state))
	if !ok {
		s.mu.Unlock()
		var zero S
		return zero, false
	}
	prev := s.state
	s.state = next
	committed := s.clone(next)
	subs := make([]subscription[S], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.dispatch(sub.fn, s.clone(next), s.clone(prev))
	}
	return committed, true
}

// dispatch shields the store from panicking listeners so one failing
// subscriber cannot block notification of the others.
func (s *Store[S]) dispatch(fn Listener[S], next, prev S) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(next, prev)
}
