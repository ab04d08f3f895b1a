package changefeed

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TestHubPublishDelivers(t *testing.T) {
	hub := NewHub()
	topic := RestaurantTopic(snowflake.ID(42))

	sub, backlog, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(backlog))
	}

	sent := NewEvent("table_sessions", OpInsert, 1, 2, 42)
	hub.Publish(topic, sent)

	select {
	case got := <-sub.Events():
		if got.ID != sent.ID {
			t.Fatalf("expected event %s, got %s", sent.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected delivery")
	}
}

func TestHubReplaysRecentEvents(t *testing.T) {
	hub := NewHub()
	topic := RestaurantTopic(snowflake.ID(42))

	keeper, _, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("subscribe keeper: %v", err)
	}
	defer keeper.Close()

	for i := 0; i < 3; i++ {
		hub.Publish(topic, NewEvent("order_items", OpInsert, snowflake.ID(i+1), 0, 42))
	}

	late, backlog, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("subscribe late: %v", err)
	}
	defer late.Close()
	if len(backlog) != 3 {
		t.Fatalf("expected 3 replayed events, got %d", len(backlog))
	}
}

func TestHubReplayBufferCapped(t *testing.T) {
	hub := NewHub()
	topic := RestaurantTopic(snowflake.ID(7))

	keeper, _, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("subscribe keeper: %v", err)
	}
	defer keeper.Close()

	for i := 0; i < DefaultBufferSize+10; i++ {
		hub.Publish(topic, NewEvent("order_items", OpInsert, snowflake.ID(i+1), 0, 7))
	}

	late, backlog, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("subscribe late: %v", err)
	}
	defer late.Close()
	if len(backlog) != DefaultBufferSize {
		t.Fatalf("expected %d replayed events, got %d", DefaultBufferSize, len(backlog))
	}
	// Oldest events fell off the front.
	if backlog[0].RowID != snowflake.ID(11) {
		t.Fatalf("expected oldest surviving row 11, got %s", backlog[0].RowID)
	}
}

func TestHubSlowConsumerDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub()
	topic := RestaurantTopic(snowflake.ID(9))

	sub, _, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			hub.Publish(topic, NewEvent("order_items", OpInsert, snowflake.ID(i+1), 0, 9))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
}

func TestHubTopicsAreIsolated(t *testing.T) {
	hub := NewHub()
	a, _, err := hub.Subscribe(RestaurantTopic(snowflake.ID(1)))
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer a.Close()
	b, _, err := hub.Subscribe(UserTopic(snowflake.ID(1), snowflake.ID(2)))
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer b.Close()

	hub.Publish(RestaurantTopic(snowflake.ID(1)), NewEvent("table_sessions", OpInsert, 5, 0, 1))

	select {
	case <-a.Events():
	case <-time.After(time.Second):
		t.Fatal("expected delivery on restaurant topic")
	}
	select {
	case event := <-b.Events():
		t.Fatalf("unexpected cross-topic delivery: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionCloseIdempotent(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(RestaurantTopic(snowflake.ID(3)))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	// Stream cleanup: the topic can be recreated afterwards.
	again, _, err := hub.Subscribe(RestaurantTopic(snowflake.ID(3)))
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	again.Close()
}

func TestHubRejectsEmptyTopic(t *testing.T) {
	hub := NewHub()
	if _, _, err := hub.Subscribe("  "); err == nil {
		t.Fatal("expected error for empty topic")
	}
	// Publishing to nothing is a no-op, not a panic.
	hub.Publish("", NewEvent("orders", OpUpdate, 1, 0, 1))
}
