package catalog

import (
	"errors"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/events"
	"github.com/hanko-field/storefront/internal/store"
	"github.com/hanko-field/storefront/internal/urlstate"
)

// StoreDeps wires the collaborators required to construct the catalog store.
type StoreDeps struct {
	Bridge   *urlstate.Bridge
	Codec    *urlstate.Codec
	Defaults Defaults
	Logger   *zap.Logger
}

// UpdateOptions control how a state update is written to the address line.
type UpdateOptions struct {
	// Replace rewrites the current history entry instead of pushing a new one.
	Replace bool
}

// Store owns the catalog query state and its bidirectional link to the
// address bridge. It is constructed once per session, seeded from the
// current address, and lives until teardown.
//
// Mutations run as atomic read-modify-writes on the inner store, so
// concurrent mutators cannot erase each other's changes; subscribers are
// still notified outside the lock and may call back into the store.
type Store struct {
	inner    *store.Store[Snapshot]
	bridge   *urlstate.Bridge
	codec    *urlstate.Codec
	defaults Defaults
	logger   *zap.Logger
	updates  *events.Topic[Updated]

	unsubscribe func()
}

// NewStore seeds the store from the current address content and subscribes
// it to bridge navigation.
func NewStore(deps StoreDeps) (*Store, error) {
	if deps.Bridge == nil {
		return nil, errors.New("catalog store: bridge is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("catalog store: codec is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		bridge:   deps.Bridge,
		codec:    deps.Codec,
		defaults: deps.Defaults,
		logger:   logger,
		updates:  events.NewTopic[Updated]("catalog.updated", logger),
	}

	initial := Snapshot{State: s.sanitizeSort(deps.Bridge.CurrentState())}
	s.inner = store.New(initial, cloneSnapshot, logger)
	s.unsubscribe = deps.Bridge.Subscribe(s.applyAddressState)

	return s, nil
}

// State returns a deep copy of the current snapshot.
func (s *Store) State() Snapshot {
	return s.inner.State()
}

// Subscribe registers a snapshot listener; see store.Store.Subscribe.
func (s *Store) Subscribe(fn store.Listener[Snapshot]) func() {
	return s.inner.Subscribe(fn)
}

// Updates exposes the broadcast topic carrying every committed change.
func (s *Store) Updates() *events.Topic[Updated] {
	return s.updates
}

// Close detaches the store from the bridge.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// UpdateState merges the patch onto the current query state, commits the
// normalized result, and pushes it to the address line. A patch that changes
// nothing material is dropped entirely: no commit, no address write.
func (s *Store) UpdateState(patch urlstate.Patch, opts UpdateOptions) {
	var prev urlstate.QueryState
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		next := s.sanitizeSort(s.codec.Merge(cur.State, patch))
		if next.Equal(cur.State) {
			return cur, false
		}
		prev = cur.State
		cur.State = next
		return cur, true
	})
	if !ok {
		return
	}

	s.publish(committed, prev)

	// Address sync runs after the commit broadcast, never in front of it.
	// The bridge echoes the state back; the equality gate drops the echo.
	s.bridge.ApplyState(committed.State.ToPatch(), opts.Replace)
}

// SetFilters replaces the filter map wholesale. It is a convenience wrapper
// over UpdateState for callers that only care about facets.
func (s *Store) SetFilters(filters map[string][]string, opts UpdateOptions) {
	if filters == nil {
		filters = map[string][]string{}
	}
	s.UpdateState(urlstate.Patch{Filters: filters}, opts)
}

// UpdateMeta commits new result metadata. Meta-only commits never touch the
// address line.
func (s *Store) UpdateMeta(meta Meta) {
	var prev urlstate.QueryState
	committed, _ := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		prev = cur.State
		cur.Meta = meta.Clone()
		return cur, true
	})

	s.publish(committed, prev)
}

// SetLoading flips the loading flag.
func (s *Store) SetLoading(loading bool) {
	var prev urlstate.QueryState
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		if cur.IsLoading == loading {
			return cur, false
		}
		prev = cur.State
		cur.IsLoading = loading
		return cur, true
	})
	if ok {
		s.publish(committed, prev)
	}
}

// SetError records a foreground fetch failure. A nil error clears it.
func (s *Store) SetError(err error) {
	var prev urlstate.QueryState
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		if cur.Err == nil && err == nil {
			return cur, false
		}
		prev = cur.State
		cur.Err = err
		return cur, true
	})
	if ok {
		s.publish(committed, prev)
	}
}

// Reset returns the query to its defaults, optionally preserving the current
// mode, and always re-syncs the address line.
func (s *Store) Reset(keepMode bool) {
	var prev urlstate.QueryState
	var target urlstate.QueryState
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		next := s.codec.DefaultState()
		if keepMode {
			next.Mode = cur.State.Mode
		}
		target = next
		if next.Equal(cur.State) {
			return cur, false
		}
		prev = cur.State
		return Snapshot{State: next}, true
	})
	if ok {
		s.publish(committed, prev)
	}
	s.bridge.ApplyState(target.ToPatch(), false)
}

// applyAddressState handles bridge-originated updates (back/forward
// navigation or echoes of our own pushes). The structural comparison is what
// breaks the store/address ping-pong: an identical state causes zero commits
// and zero address writes.
func (s *Store) applyAddressState(state urlstate.QueryState) {
	var prev urlstate.QueryState
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		next := s.sanitizeSort(state)
		if next.Equal(cur.State) {
			return cur, false
		}
		prev = cur.State
		cur.State = next
		return cur, true
	})
	if !ok {
		return
	}

	s.logger.Debug("catalog state adopted from address",
		zap.String("search", committed.State.Search),
		zap.Int("page", committed.State.Page))
	s.publish(committed, prev)
}

// publish broadcasts an already-committed snapshot. Runs outside the inner
// store's lock.
func (s *Store) publish(next Snapshot, prevState urlstate.QueryState) {
	s.updates.Publish(Updated{
		State:     next.State.Clone(),
		Meta:      next.Meta.Clone(),
		IsLoading: next.IsLoading,
		Err:       next.Err,
		Prev:      prevState.Clone(),
	})
}

func (s *Store) sanitizeSort(state urlstate.QueryState) urlstate.QueryState {
	if s.defaults.AllowSort(state.Sort) {
		return state
	}
	out := state.Clone()
	out.Sort = s.defaults.Sort
	return out
}
