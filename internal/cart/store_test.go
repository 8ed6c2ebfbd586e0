package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/session"
)

type stubLocal struct {
	mu    sync.Mutex
	blobs map[string][]byte

	getErr error
	putErr error
	puts   int
}

func newStubLocal() *stubLocal {
	return &stubLocal{blobs: map[string][]byte{}}
}

func (l *stubLocal) Get(key string, out any) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return false, l.getErr
	}
	raw, ok := l.blobs[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (l *stubLocal) Put(key string, v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.putErr != nil {
		return l.putErr
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.blobs[key] = raw
	l.puts++
	return nil
}

func (l *stubLocal) seed(t *testing.T, key string, state State) {
	t.Helper()
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("seed marshal: %v", err)
	}
	l.mu.Lock()
	l.blobs[key] = raw
	l.mu.Unlock()
}

func (l *stubLocal) putCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.puts
}

type stubRemote struct {
	mu      sync.Mutex
	fetchFn func(ctx context.Context, token string) (State, error)
	pushFn  func(ctx context.Context, token string, state State) error
	pushes  []State
}

func (r *stubRemote) Fetch(ctx context.Context, token string) (State, error) {
	if r.fetchFn == nil {
		return State{}, nil
	}
	return r.fetchFn(ctx, token)
}

func (r *stubRemote) Push(ctx context.Context, token string, state State) error {
	r.mu.Lock()
	r.pushes = append(r.pushes, state.Clone())
	fn := r.pushFn
	r.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, token, state)
}

func (r *stubRemote) pushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushes)
}

type stubSession struct {
	sess session.Session
	err  error
}

func (s *stubSession) Current(context.Context) (session.Session, error) {
	return s.sess, s.err
}

func fixedClock() func() time.Time {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var ticks int
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
}

func newTestStore(t *testing.T, deps StoreDeps) *Store {
	t.Helper()
	if deps.Local == nil {
		deps.Local = newStubLocal()
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock()
	}
	deps.Logger = zap.NewNop()
	s, err := NewStore(deps)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAddItemPersistsAndNotifies(t *testing.T) {
	local := newStubLocal()
	s := newTestStore(t, StoreDeps{Local: local})

	var added []ItemEvent
	defer s.ItemAdded().Subscribe(func(ev ItemEvent) { added = append(added, ev) })()

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 4200}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	snap := s.State()
	if len(snap.Cart.Items) != 1 || snap.Cart.Items[0].ID != 7 {
		t.Fatalf("expected one item committed, got %+v", snap.Cart.Items)
	}
	if snap.Cart.LastUpdated.IsZero() {
		t.Fatalf("expected LastUpdated stamped")
	}
	if len(added) != 1 || added[0].Item.ID != 7 {
		t.Fatalf("expected item added event, got %+v", added)
	}

	var persisted State
	if ok, err := local.Get(DefaultStorageKey, &persisted); err != nil || !ok {
		t.Fatalf("expected cart persisted, ok=%v err=%v", ok, err)
	}
	if len(persisted.Items) != 1 {
		t.Fatalf("expected persisted cart with one item, got %+v", persisted.Items)
	}
}

func TestAddItemDuplicateKeyIsSilentNoOp(t *testing.T) {
	local := newStubLocal()
	s := newTestStore(t, StoreDeps{Local: local})

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	putsAfterFirst := local.putCount()

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 999}); err != nil {
		t.Fatalf("duplicate AddItem: %v", err)
	}

	snap := s.State()
	if len(snap.Cart.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(snap.Cart.Items))
	}
	if got := snap.Cart.Items[0].Price; got != 100 {
		t.Fatalf("expected original price preserved, got %d", got)
	}
	if local.putCount() != putsAfterFirst {
		t.Fatalf("expected no persistence for duplicate add")
	}
}

func TestAddItemSameIDDifferentKindsCoexist(t *testing.T) {
	s := newTestStore(t, StoreDeps{})

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "accessory", Price: 50}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if got := len(s.State().Cart.Items); got != 2 {
		t.Fatalf("expected both kinds in cart, got %d items", got)
	}
}

func TestAddItemValidation(t *testing.T) {
	s := newTestStore(t, StoreDeps{})

	cases := []AddItemCommand{
		{ID: 0, Kind: "instance", Price: 100},
		{ID: 1, Kind: "widget", Price: 100},
		{ID: 1, Kind: "instance", Price: 0},
		{ID: 1, Kind: "instance", Price: -5},
	}
	for _, cmd := range cases {
		err := s.AddItem(context.Background(), cmd)
		if !errors.Is(err, ErrInvalidItem) {
			t.Fatalf("expected ErrInvalidItem for %+v, got %v", cmd, err)
		}
	}
	if got := len(s.State().Cart.Items); got != 0 {
		t.Fatalf("expected no items after rejected adds, got %d", got)
	}
}

func TestRemoveItem(t *testing.T) {
	s := newTestStore(t, StoreDeps{})
	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	var removed []ItemEvent
	defer s.ItemRemoved().Subscribe(func(ev ItemEvent) { removed = append(removed, ev) })()

	if !s.RemoveItem(context.Background(), KindInstance, 7) {
		t.Fatalf("expected removal to report a change")
	}
	if got := len(s.State().Cart.Items); got != 0 {
		t.Fatalf("expected empty cart, got %d items", got)
	}
	if len(removed) != 1 || removed[0].Item.ID != 7 {
		t.Fatalf("expected item removed event, got %+v", removed)
	}

	if s.RemoveItem(context.Background(), KindInstance, 7) {
		t.Fatalf("expected second removal to be a no-op")
	}
}

func TestClearEmptiesCart(t *testing.T) {
	local := newStubLocal()
	s := newTestStore(t, StoreDeps{Local: local})
	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	s.Clear(context.Background())

	if got := len(s.State().Cart.Items); got != 0 {
		t.Fatalf("expected empty cart, got %d items", got)
	}
	var persisted State
	if _, err := local.Get(DefaultStorageKey, &persisted); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(persisted.Items) != 0 {
		t.Fatalf("expected empty cart persisted, got %+v", persisted.Items)
	}
}

func TestNewStoreSeedsFromPersistedState(t *testing.T) {
	local := newStubLocal()
	local.seed(t, DefaultStorageKey, State{Items: []Item{
		{ID: 3, Kind: KindAccessory, Price: 900, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}})

	s := newTestStore(t, StoreDeps{Local: local})

	items := s.State().Cart.Items
	if len(items) != 1 || items[0].ID != 3 {
		t.Fatalf("expected seeded item, got %+v", items)
	}
}

func TestNewStoreDropsInvalidPersistedItems(t *testing.T) {
	local := newStubLocal()
	local.seed(t, DefaultStorageKey, State{Items: []Item{
		{ID: 0, Kind: KindInstance, Price: 100},
		{ID: 2, Kind: "widget", Price: 100},
		{ID: 3, Kind: KindInstance, Price: -1},
		{ID: 4, Kind: KindInstance, Price: 100, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}})

	s := newTestStore(t, StoreDeps{Local: local})

	items := s.State().Cart.Items
	if len(items) != 1 || items[0].ID != 4 {
		t.Fatalf("expected only the valid item, got %+v", items)
	}
}

func TestNewStoreStartsEmptyOnCorruptSeed(t *testing.T) {
	local := newStubLocal()
	local.getErr = errors.New("corrupt blob")

	s := newTestStore(t, StoreDeps{Local: local})

	if got := len(s.State().Cart.Items); got != 0 {
		t.Fatalf("expected empty cart on corrupt seed, got %d items", got)
	}
}

func TestMutationPushesToRemoteWhenAuthenticated(t *testing.T) {
	remote := &stubRemote{}
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	s := newTestStore(t, StoreDeps{Remote: remote, Session: sess})

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	s.Flush()

	if got := remote.pushCount(); got != 1 {
		t.Fatalf("expected one remote push, got %d", got)
	}
}

func TestMutationDoesNotPushWhenAnonymous(t *testing.T) {
	remote := &stubRemote{}
	s := newTestStore(t, StoreDeps{Remote: remote, Session: &stubSession{sess: session.Anonymous}})

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	s.Flush()

	if got := remote.pushCount(); got != 0 {
		t.Fatalf("expected no remote push for anonymous session, got %d", got)
	}
}

func TestPushFailureLeavesCartIntact(t *testing.T) {
	remote := &stubRemote{pushFn: func(context.Context, string, State) error {
		return errors.New("network down")
	}}
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	s := newTestStore(t, StoreDeps{Remote: remote, Session: sess})

	if err := s.AddItem(context.Background(), AddItemCommand{ID: 7, Kind: "instance", Price: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	s.Flush()

	if got := len(s.State().Cart.Items); got != 1 {
		t.Fatalf("expected cart unchanged after push failure, got %d items", got)
	}
}

func TestSyncOnAuthAdoptsRemoteWhenLocalEmpty(t *testing.T) {
	local := newStubLocal()
	remote := &stubRemote{fetchFn: func(context.Context, string) (State, error) {
		return State{Items: []Item{{ID: 9, Kind: KindInstance, Price: 500, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}}}, nil
	}}
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	s := newTestStore(t, StoreDeps{Local: local, Remote: remote, Session: sess})

	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}
	s.Flush()

	snap := s.State()
	if !snap.IsAuthenticated || snap.AccountID != "acc-1" {
		t.Fatalf("expected authenticated snapshot, got %+v", snap)
	}
	if len(snap.Cart.Items) != 1 || snap.Cart.Items[0].ID != 9 {
		t.Fatalf("expected remote cart adopted, got %+v", snap.Cart.Items)
	}
	var persisted State
	if ok, err := local.Get(DefaultStorageKey, &persisted); err != nil || !ok {
		t.Fatalf("expected adopted cart persisted, ok=%v err=%v", ok, err)
	}
	if got := remote.pushCount(); got != 0 {
		t.Fatalf("expected no push when remote won, got %d", got)
	}
}

func TestSyncOnAuthPushesLocalWhenRemoteEmpty(t *testing.T) {
	remote := &stubRemote{fetchFn: func(context.Context, string) (State, error) {
		return State{}, nil
	}}
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	local := newStubLocal()
	local.seed(t, DefaultStorageKey, State{Items: []Item{
		{ID: 7, Kind: KindInstance, Price: 100, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}})
	s := newTestStore(t, StoreDeps{Local: local, Remote: remote, Session: sess})

	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}
	s.Flush()

	if got := remote.pushCount(); got != 1 {
		t.Fatalf("expected local cart pushed to remote, got %d pushes", got)
	}
	if got := len(s.State().Cart.Items); got != 1 {
		t.Fatalf("expected local cart kept, got %d items", got)
	}
}

func TestSyncOnAuthRemoteWinsWhenBothNonEmpty(t *testing.T) {
	remote := &stubRemote{fetchFn: func(context.Context, string) (State, error) {
		return State{Items: []Item{{ID: 9, Kind: KindAccessory, Price: 500, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}}}, nil
	}}
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	local := newStubLocal()
	local.seed(t, DefaultStorageKey, State{Items: []Item{
		{ID: 7, Kind: KindInstance, Price: 100, AddedAt: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)},
	}})
	s := newTestStore(t, StoreDeps{Local: local, Remote: remote, Session: sess})

	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}
	s.Flush()

	items := s.State().Cart.Items
	if len(items) != 1 || items[0].ID != 9 {
		t.Fatalf("expected remote cart to win, got %+v", items)
	}
	if got := remote.pushCount(); got != 0 {
		t.Fatalf("expected no push when remote won, got %d", got)
	}
}

func TestSyncOnAuthFetchFailureKeepsLocalCart(t *testing.T) {
	remote := &stubRemote{fetchFn: func(context.Context, string) (State, error) {
		return State{}, errors.New("remote unavailable")
	}}
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	local := newStubLocal()
	local.seed(t, DefaultStorageKey, State{Items: []Item{
		{ID: 7, Kind: KindInstance, Price: 100, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}})
	s := newTestStore(t, StoreDeps{Local: local, Remote: remote, Session: sess})

	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}

	snap := s.State()
	if len(snap.Cart.Items) != 1 {
		t.Fatalf("expected local cart retained, got %+v", snap.Cart.Items)
	}
	if !snap.IsAuthenticated {
		t.Fatalf("expected session recorded despite fetch failure")
	}
	if snap.IsLoading {
		t.Fatalf("expected loading flag cleared")
	}
	if snap.Err == nil {
		t.Fatalf("expected fetch failure recorded on snapshot")
	}

	// A later successful sync clears the recorded failure.
	remote.fetchFn = func(context.Context, string) (State, error) {
		return State{}, nil
	}
	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}
	s.Flush()
	if snap := s.State(); snap.Err != nil {
		t.Fatalf("expected error cleared after successful sync, got %v", snap.Err)
	}
}

func TestConcurrentAddsLoseNoItems(t *testing.T) {
	s := newTestStore(t, StoreDeps{})

	const pairs = 50
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		first := AddItemCommand{ID: uint64(i + 1), Kind: "instance", Price: 100}
		second := AddItemCommand{ID: uint64(i + 1), Kind: "accessory", Price: 200}
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.AddItem(context.Background(), first); err != nil {
				t.Errorf("AddItem: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.AddItem(context.Background(), second); err != nil {
				t.Errorf("AddItem: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(s.State().Cart.Items); got != 2*pairs {
		t.Fatalf("expected %d items after concurrent adds, got %d", 2*pairs, got)
	}
}

func TestSyncOnAuthAnonymousClearsSessionFields(t *testing.T) {
	sess := &stubSession{sess: session.Session{Authenticated: true, AccountID: "acc-1", Token: "tok"}}
	s := newTestStore(t, StoreDeps{Remote: &stubRemote{}, Session: sess})

	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}
	if !s.State().IsAuthenticated {
		t.Fatalf("expected authenticated state")
	}

	sess.sess = session.Anonymous
	if err := s.SyncOnAuth(context.Background()); err != nil {
		t.Fatalf("SyncOnAuth: %v", err)
	}

	snap := s.State()
	if snap.IsAuthenticated || snap.AccountID != "" {
		t.Fatalf("expected anonymous snapshot, got %+v", snap)
	}
}

func TestReseedFromLocalAdoptsChangedBlob(t *testing.T) {
	local := newStubLocal()
	s := newTestStore(t, StoreDeps{Local: local})

	commits := 0
	defer s.Subscribe(func(next, prev Snapshot) { commits++ })()
	baseline := commits

	local.seed(t, DefaultStorageKey, State{Items: []Item{
		{ID: 5, Kind: KindInstance, Price: 300, AddedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}})
	s.ReseedFromLocal()

	if got := len(s.State().Cart.Items); got != 1 {
		t.Fatalf("expected reseeded cart, got %d items", got)
	}
	if commits != baseline+1 {
		t.Fatalf("expected one commit for changed blob, got %d", commits-baseline)
	}

	// Identical blob must not commit again.
	s.ReseedFromLocal()
	if commits != baseline+1 {
		t.Fatalf("expected no commit for identical blob, got %d", commits-baseline)
	}
}
