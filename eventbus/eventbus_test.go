package eventbus

import (
	"encoding/json"
	"testing"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ch := bus.Subscribe("sess1")
	defer bus.Unsubscribe("sess1", ch)

	msg, err := NewStatusMessage("sess1", map[string]string{"status": "RUNNING"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	bus.Publish("sess1", msg)

	got := <-ch
	if got.Topic != TopicStatus {
		t.Fatalf("expected status topic, got %q", got.Topic)
	}
	var payload map[string]string
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["status"] != "RUNNING" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestPublishIsolatedPerSession(t *testing.T) {
	bus := NewInMemoryBus()
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")
	defer bus.Unsubscribe("a", a)
	defer bus.Unsubscribe("b", b)

	msg, _ := NewUpdateMessage("a", "hello")
	bus.Publish("a", msg)

	if got := <-a; got.SessionID != "a" {
		t.Fatalf("unexpected session id %q", got.SessionID)
	}
	select {
	case m := <-b:
		t.Fatalf("subscriber b received message for session a: %+v", m)
	default:
	}
}

func TestSlowSubscriberDropsMessages(t *testing.T) {
	bus := NewInMemoryBus()
	ch := bus.Subscribe("sess1")
	defer bus.Unsubscribe("sess1", ch)

	// Overflow the buffer; Publish must not block.
	for i := 0; i < 200; i++ {
		msg, _ := NewUpdateMessage("sess1", i)
		bus.Publish("sess1", msg)
	}

	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer of %d, got %d", cap(ch), len(ch))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewInMemoryBus()
	ch := bus.Subscribe("sess1")
	bus.Unsubscribe("sess1", ch)

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}

	// Publishing after unsubscribe is a no-op.
	msg, _ := NewUpdateMessage("sess1", "late")
	bus.Publish("sess1", msg)
}
