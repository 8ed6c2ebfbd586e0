package urlstate

import (
	"sync"

	"go.uber.org/zap"
)

// Bridge owns the one mutable piece of the address line. It applies query
// states to the history (push or replace) and rebroadcasts the normalized
// state to subscribers, both on its own writes and on back/forward
// navigation. The bridge is itself an observable, so stores stay decoupled
// from the concrete History.
//
// A bridge constructed without a History degrades to a no-op address line:
// state still flows to subscribers, only persistence to the address is lost.
type Bridge struct {
	codec   *Codec
	history History
	logger  *zap.Logger

	mu     sync.Mutex
	memory QueryState
	nextID uint64
	subs   []bridgeSub

	unsubscribe func()
}

type bridgeSub struct {
	id uint64
	fn func(QueryState)
}

// NewBridge wires the codec to the history. history may be nil.
func NewBridge(codec *Codec, history History, logger *zap.Logger) *Bridge {
	if codec == nil {
		codec = NewCodec(Defaults{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		codec:   codec,
		history: history,
		logger:  logger,
		memory:  codec.DefaultState(),
	}
	if history != nil {
		// Navigation entries may have been created outside this bridge, so
		// the state is re-derived from the address content rather than
		// trusted from any payload.
		b.unsubscribe = history.Subscribe(func(entry Entry) {
			state := codec.Parse(entry.Query)
			b.logger.Debug("address navigation observed", zap.String("query", entry.Query))
			b.fanOut(state)
		})
	}
	return b
}

// Close detaches the bridge from history notifications.
func (b *Bridge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// CurrentState parses the current address content into a normalized query
// state.
func (b *Bridge) CurrentState() QueryState {
	if b.history == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.memory.Clone()
	}
	return b.codec.Parse(b.history.Current().Query)
}

// ApplyState merges the patch onto the state parsed from the current address
// (never a cached copy), writes the result back as a push or replace, and
// synchronously fans the normalized state out to subscribers. It returns the
// state that was applied.
func (b *Bridge) ApplyState(patch Patch, replace bool) QueryState {
	next := b.codec.Merge(b.CurrentState(), patch)

	if b.history == nil {
		b.mu.Lock()
		b.memory = next.Clone()
		b.mu.Unlock()
	} else {
		entry := Entry{
			Path:  b.history.Current().Path,
			Query: b.codec.Serialize(next),
		}
		if replace {
			b.history.Replace(entry)
		} else {
			b.history.Push(entry)
		}
	}

	b.fanOut(next)
	return next
}

// Subscribe registers a listener for normalized query states and returns its
// unsubscribe function.
func (b *Bridge) Subscribe(fn func(QueryState)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, bridgeSub{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bridge) fanOut(state QueryState) {
	b.mu.Lock()
	subs := make([]bridgeSub, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub.fn, state.Clone())
	}
}

func (b *Bridge) deliver(fn func(QueryState), state QueryState) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bridge subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(state)
}
