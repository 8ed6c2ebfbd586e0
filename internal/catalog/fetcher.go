package catalog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Fetcher runs the foreground catalog query for the store. Issuing a new
// query aborts whichever query is still in flight, so the last issued query
// always wins the snapshot; a stale response that resolves later can never
// regress visible state.
type Fetcher struct {
	source Source
	store  *Store
	logger *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFetcher wires the source to the store.
func NewFetcher(source Source, store *Store, logger *zap.Logger) (*Fetcher, error) {
	if source == nil {
		return nil, errors.New("catalog fetcher: source is required")
	}
	if store == nil {
		return nil, errors.New("catalog fetcher: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{source: source, store: store, logger: logger}, nil
}

// Bind subscribes the fetcher to the store so every material query change
// triggers a fetch, and issues the initial fetch for the seeded state.
// It returns an unbind function.
func (f *Fetcher) Bind(ctx context.Context) func() {
	unsubscribe := f.store.Updates().Subscribe(func(ev Updated) {
		if ev.State.Equal(ev.Prev) {
			return
		}
		f.Fetch(ctx)
	})
	f.Fetch(ctx)
	return func() {
		unsubscribe()
		f.Stop()
	}
}

// Fetch issues the query for the store's current state, superseding any
// in-flight fetch.
func (f *Fetcher) Fetch(ctx context.Context) {
	state := f.store.State().State

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	f.store.SetLoading(true)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()

		result, err := f.source.Query(fetchCtx, state)

		f.mu.Lock()
		stale := seq != f.seq
		f.mu.Unlock()
		if stale {
			// A newer query was issued while this one ran; its outcome is
			// irrelevant regardless of success.
			return
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			f.logger.Warn("catalog fetch failed", zap.Error(err))
			f.store.SetError(err)
			f.store.SetLoading(false)
			return
		}

		f.store.SetError(nil)
		f.store.UpdateMeta(result.Meta)
		f.store.SetLoading(false)
	}()
}

// Stop aborts any in-flight fetch and waits for it to settle.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.seq++
	f.mu.Unlock()
	f.wg.Wait()
}
