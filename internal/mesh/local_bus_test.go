package mesh

import (
	"context"
	"testing"
	"time"
)

func TestLocalBus_PublishReachesSubscriber(t *testing.T) {
	bus := NewLocalBus()
	got := make(chan Event, 1)

	unsub, err := bus.Subscribe(TopicCheckinAdmitted, func(ctx context.Context, e Event) {
		got <- e
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := bus.Publish(context.Background(), Event{Topic: TopicCheckinAdmitted, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-got:
		if e.Topic != TopicCheckinAdmitted {
			t.Fatalf("unexpected topic %q", e.Topic)
		}
		if e.Timestamp.IsZero() {
			t.Fatal("expected publish to stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestLocalBus_TopicsAreIsolated(t *testing.T) {
	bus := NewLocalBus()
	got := make(chan Event, 1)

	_, err := bus.Subscribe(TopicAgentStatus, func(ctx context.Context, e Event) {
		got <- e
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), Event{Topic: TopicCheckinAdmitted}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-got:
		t.Fatalf("subscriber on another topic received %q", e.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}
