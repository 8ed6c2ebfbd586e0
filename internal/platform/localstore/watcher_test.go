package localstore

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitForCalls(t *testing.T, calls *atomic.Int64, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected at least %d watcher calls, got %d", want, calls.Load())
}

func TestWatchFiresOnBlobReplacement(t *testing.T) {
	s := newTestStore(t)

	var calls atomic.Int64
	stop, err := s.Watch(context.Background(), "cart", func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if err := s.Put("cart", payload{Count: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	waitForCalls(t, &calls, 1)
}

func TestWatchIgnoresOtherKeys(t *testing.T) {
	s := newTestStore(t)

	var calls atomic.Int64
	stop, err := s.Watch(context.Background(), "cart", func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if err := s.Put("preferences", payload{Count: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no calls for unrelated key, got %d", got)
	}
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	stop, err := s.Watch(ctx, "cart", func() { calls.Add(1) })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	cancel()
	time.Sleep(50 * time.Millisecond)

	if err := s.Put("cart", payload{Count: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Fatalf("expected no calls after cancel, got %d", got)
	}
}
