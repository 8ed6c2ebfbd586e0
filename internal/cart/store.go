package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/events"
	"github.com/hanko-field/storefront/internal/platform/session"
	"github.com/hanko-field/storefront/internal/store"
)

// ErrInvalidItem indicates the caller supplied an item violating the cart
// invariants. The store is left untouched.
var ErrInvalidItem = errors.New("cart store: invalid item")

var errLocalRequired = errors.New("cart store: local storage is required")

const (
	// DefaultStorageKey is the namespaced local-storage key the cart blob
	// lives under.
	DefaultStorageKey = "hanko.cart.v1"

	defaultPushTimeout = 10 * time.Second
)

// Local is the synchronous persistence the cart writes through on every
// mutation.
type Local interface {
	Get(key string, out any) (bool, error)
	Put(key string, v any) error
}

// StoreDeps wires the collaborators for the cart store.
type StoreDeps struct {
	Local       Local
	Remote      Remote         // optional; nil disables remote sync
	Session     session.Source // optional; nil keeps the cart anonymous
	Clock       func() time.Time
	Logger      *zap.Logger
	StorageKey  string
	PushTimeout time.Duration
}

// AddItemCommand carries the caller-supplied fields for AddItem.
type AddItemCommand struct {
	ID    uint64
	Kind  string
	Price int64
}

// Store is the process-wide cart holder. It is seeded from local storage at
// construction, persists every mutation synchronously, and schedules
// best-effort background pushes to the remote account store while a session
// is authenticated.
//
// Remote pushes are fire-and-forget: they are not queued, retried, or
// ordered against each other. The server observes the last write that
// reaches it.
type Store struct {
	inner       *store.Store[Snapshot]
	local       Local
	remote      Remote
	session     session.Source
	now         func() time.Time
	logger      *zap.Logger
	key         string
	pushTimeout time.Duration

	pushes sync.WaitGroup

	itemAdded   *events.Topic[ItemEvent]
	itemRemoved *events.Topic[ItemEvent]
	updated     *events.Topic[UpdatedEvent]
}

// NewStore seeds the cart from local storage. A corrupted or unreadable
// blob degrades to the empty cart; construction only fails on missing
// dependencies.
func NewStore(deps StoreDeps) (*Store, error) {
	if deps.Local == nil {
		return nil, errLocalRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	key := deps.StorageKey
	if key == "" {
		key = DefaultStorageKey
	}
	pushTimeout := deps.PushTimeout
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}

	s := &Store{
		local:       deps.Local,
		remote:      deps.Remote,
		session:     deps.Session,
		now:         func() time.Time { return clock().UTC() },
		logger:      logger,
		key:         key,
		pushTimeout: pushTimeout,
		itemAdded:   events.NewTopic[ItemEvent]("cart.item_added", logger),
		itemRemoved: events.NewTopic[ItemEvent]("cart.item_removed", logger),
		updated:     events.NewTopic[UpdatedEvent]("cart.updated", logger),
	}

	var persisted State
	if _, err := deps.Local.Get(key, &persisted); err != nil {
		logger.Warn("cart seed read failed, starting empty", zap.Error(err))
		persisted = State{}
	}

	s.inner = store.New(Snapshot{Cart: normalize(persisted)}, cloneSnapshot, logger)
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

// ItemAdded exposes the topic fired when an item enters the cart.
func (s *Store) ItemAdded() *events.Topic[ItemEvent] { return s.itemAdded }

// ItemRemoved exposes the topic fired when an item leaves the cart.
func (s *Store) ItemRemoved() *events.Topic[ItemEvent] { return s.itemRemoved }

// Updated exposes the topic fired after every committed cart change.
func (s *Store) Updated() *events.Topic[UpdatedEvent] { return s.updated }

// AddItem validates and appends an item. Adding an item whose (kind, id)
// key already exists is a silent no-op, so the call is idempotent; the
// existing item, including its price, is left untouched. Invalid input is
// rejected with ErrInvalidItem before any mutation.
func (s *Store) AddItem(ctx context.Context, cmd AddItemCommand) error {
	kind, ok := ParseKind(cmd.Kind)
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, cmd.Kind)
	}
	if cmd.ID == 0 {
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if cmd.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidItem)
	}

	key := Key{Kind: kind, ID: cmd.ID}

	var item Item
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		for _, existing := range cur.Cart.Items {
			if existing.Key() == key {
				return cur, false
			}
		}
		now := s.now()
		item = Item{ID: cmd.ID, Kind: kind, Price: cmd.Price, AddedAt: now}
		cur.Cart.Items = append(cur.Cart.Items, item)
		cur.Cart.LastUpdated = now
		s.persistLocal(cur.Cart)
		return cur, true
	})
	if !ok {
		return nil
	}

	s.updated.Publish(UpdatedEvent{Cart: committed.Cart.Clone()})
	s.itemAdded.Publish(ItemEvent{Item: item, Cart: committed.Cart.Clone()})
	s.schedulePush(ctx, committed.Cart)
	return nil
}

// RemoveItem drops the item with the given identity. Removing an absent key
// is a no-op; the return value reports whether anything changed.
func (s *Store) RemoveItem(ctx context.Context, kind Kind, id uint64) bool {
	key := Key{Kind: kind, ID: id}

	var removed Item
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		idx := -1
		for i, item := range cur.Cart.Items {
			if item.Key() == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return cur, false
		}
		removed = cur.Cart.Items[idx]
		cur.Cart.Items = append(cur.Cart.Items[:idx], cur.Cart.Items[idx+1:]...)
		cur.Cart.LastUpdated = s.now()
		s.persistLocal(cur.Cart)
		return cur, true
	})
	if !ok {
		return false
	}

	s.updated.Publish(UpdatedEvent{Cart: committed.Cart.Clone()})
	s.itemRemoved.Publish(ItemEvent{Item: removed, Cart: committed.Cart.Clone()})
	s.schedulePush(ctx, committed.Cart)
	return true
}

// Clear resets the cart to empty.
func (s *Store) Clear(ctx context.Context) {
	committed, _ := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		cur.Cart = State{LastUpdated: s.now()}
		s.persistLocal(cur.Cart)
		return cur, true
	})

	s.updated.Publish(UpdatedEvent{Cart: committed.Cart.Clone()})
	s.schedulePush(ctx, committed.Cart)
}

// SyncOnAuth runs the session-state transition: it re-resolves the session,
// fetches the remote account cart, applies the reconciliation policy,
// persists the winner locally, and pushes it back when the remote copy was
// behind. Remote failures are logged; the local cart stays authoritative.
func (s *Store) SyncOnAuth(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	sess := s.currentSession(ctx)
	if !sess.Authenticated || s.remote == nil {
		s.commitSession(sess, nil)
		return nil
	}

	remoteState, err := s.remote.Fetch(ctx, sess.Token)
	if err != nil {
		s.logger.Warn("remote cart fetch failed, keeping local cart",
			zap.String("accountId", sess.AccountID),
			zap.Error(err))
		s.commitSession(sess, fmt.Errorf("cart store: remote fetch: %w", err))
		return nil
	}

	var resolution Resolution
	committed, _ := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		var winner State
		winner, resolution = Reconcile(cur.Cart, remoteState)
		if resolution != ResolutionNone {
			s.persistLocal(winner)
		}
		cur.Cart = winner
		cur.IsAuthenticated = true
		cur.AccountID = sess.AccountID
		cur.Err = nil
		return cur, true
	})

	s.updated.Publish(UpdatedEvent{Cart: committed.Cart.Clone()})
	if resolution == ResolutionAdoptLocal {
		s.schedulePush(ctx, committed.Cart)
	}
	return nil
}

// ReseedFromLocal re-reads the persisted blob and adopts it when it differs
// from the in-memory cart. It is the entry point for external local-storage
// mutations (another tab or process rewriting the blob).
func (s *Store) ReseedFromLocal() {
	var persisted State
	if _, err := s.local.Get(s.key, &persisted); err != nil {
		s.logger.Warn("cart reseed read failed", zap.Error(err))
		return
	}
	next := normalize(persisted)

	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		if next.Equal(cur.Cart) {
			return cur, false
		}
		cur.Cart = next
		return cur, true
	})
	if !ok {
		return
	}

	s.logger.Info("cart reseeded from local storage",
		zap.Int("items", len(committed.Cart.Items)))
	s.updated.Publish(UpdatedEvent{Cart: committed.Cart.Clone()})
}

// Flush blocks until every scheduled remote push has settled. Used at
// shutdown and in tests.
func (s *Store) Flush() {
	s.pushes.Wait()
}

// persistLocal writes through to local storage. Persistence failures are
// logged and swallowed: the in-memory mutation proceeds regardless. Runs
// inside the inner store's update critical section, so blobs hit disk in
// commit order.
func (s *Store) persistLocal(state State) {
	if err := s.local.Put(s.key, state); err != nil {
		s.logger.Warn("cart local persist failed", zap.Error(err))
	}
}

func (s *Store) setLoading(loading bool) {
	s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		if cur.IsLoading == loading {
			return cur, false
		}
		cur.IsLoading = loading
		return cur, true
	})
}

// commitSession records the resolved session and the outcome of the sync
// attempt without touching the cart payload.
func (s *Store) commitSession(sess session.Session, syncErr error) {
	committed, ok := s.inner.Update(func(cur Snapshot) (Snapshot, bool) {
		if cur.IsAuthenticated == sess.Authenticated && cur.AccountID == sess.AccountID && cur.Err == nil && syncErr == nil {
			return cur, false
		}
		cur.IsAuthenticated = sess.Authenticated
		cur.AccountID = sess.AccountID
		cur.Err = syncErr
		return cur, true
	})
	if ok {
		s.updated.Publish(UpdatedEvent{Cart: committed.Cart.Clone()})
	}
}

func (s *Store) currentSession(ctx context.Context) session.Session {
	if s.session == nil {
		return session.Anonymous
	}
	sess, err := s.session.Current(ctx)
	if err != nil {
		s.logger.Warn("session resolution failed", zap.Error(err))
		return session.Anonymous
	}
	return sess
}

// schedulePush fires a best-effort background push of the given cart to the
// remote store when the session is authenticated. The outcome surfaces only
// through the log; the originating mutation has already returned.
func (s *Store) schedulePush(ctx context.Context, state State) {
	if s.remote == nil {
		return
	}
	sess := s.currentSession(ctx)
	if !sess.Authenticated {
		return
	}

	payload := state.Clone()
	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		pushCtx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
		defer cancel()
		if err := s.remote.Push(pushCtx, sess.Token, payload); err != nil {
			s.logger.Warn("cart remote push failed",
				zap.String("accountId", sess.AccountID),
				zap.Error(err))
		}
	}()
}
