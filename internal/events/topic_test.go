package events

import (
	"testing"

	"go.uber.org/zap"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	topic := NewTopic[int]("test", zap.NewNop())

	var order []string
	defer topic.Subscribe(func(int) { order = append(order, "first") })()
	defer topic.Subscribe(func(int) { order = append(order, "second") })()

	topic.Publish(1)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected delivery in registration order, got %v", order)
	}
}

func TestUnsubscribedHandlerNotCalled(t *testing.T) {
	topic := NewTopic[string]("test", zap.NewNop())

	calls := 0
	unsubscribe := topic.Subscribe(func(string) { calls++ })
	unsubscribe()

	topic.Publish("event")

	if calls != 0 {
		t.Fatalf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	topic := NewTopic[int]("test", zap.NewNop())

	defer topic.Subscribe(func(int) { panic("boom") })()
	calls := 0
	defer topic.Subscribe(func(int) { calls++ })()

	topic.Publish(1)

	if calls != 1 {
		t.Fatalf("expected handler after the panicking one to run, got %d", calls)
	}
}

func TestReentrantSubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[int]("test", zap.NewNop())

	lateCalls := 0
	defer topic.Subscribe(func(int) {
		topic.Subscribe(func(int) { lateCalls++ })
	})()

	topic.Publish(1)
	if lateCalls != 0 {
		t.Fatalf("handler registered mid-publish must not see the in-flight event, got %d", lateCalls)
	}

	topic.Publish(2)
	if lateCalls == 0 {
		t.Fatalf("expected late handler to receive the next event")
	}
}
