package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("client.", 10)
	defer unsub()

	b.Publish(Event{Kind: "client.state_changed", At: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "client.state_changed" {
			t.Errorf("got kind %q, want client.state_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("room.", 10)
	defer unsub()

	b.Publish(Event{Kind: "message.updated"})
	b.Publish(Event{Kind: "room.updated"})

	select {
	case evt := <-ch:
		if evt.Kind != "room.updated" {
			t.Errorf("got kind %q, want room.updated", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the message event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("room.", 10)
	unsub()

	b.Publish(Event{Kind: "room.updated"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestPublishFillsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Kind: "test.one"})
	evt := <-ch
	if evt.At.IsZero() {
		t.Error("event At not filled by Publish")
	}
}
