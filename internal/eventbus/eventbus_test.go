package eventbus

import (
	"testing"
	"time"

	"github.com/meshmonitor/meshmonitor/internal/store"
)

func TestSubscribePublishDeliversEvent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.PublishMessage(store.Message{ID: "1_1", Text: "hi"})

	select {
	case ev := <-ch:
		if ev.Type != EventMessage {
			t.Fatalf("Type = %v, want %v", ev.Type, EventMessage)
		}
		m, ok := ev.Data.(store.Message)
		if !ok || m.ID != "1_1" {
			t.Fatalf("Data = %#v, want message 1_1", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	if got, want := b.Len(), 1; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	unsub()
	if got, want := b.Len(), 0; got != want {
		t.Fatalf("Len() after unsub = %d, want %d", got, want)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestPublishSkipsSlowSubscriberWithoutBlocking(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			b.PublishNode(store.Node{NodeNum: uint32(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}
