package realtime

import (
	"context"
	"testing"
	"time"
)

func TestLocalBusDelivers(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	ch, cancel := bus.Subscribe(ctx, "ev1")
	defer cancel()

	want := Change{EventID: "ev1", Collection: "attendees", ID: "a1", Action: "updated"}
	bus.Publish(ctx, want)

	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}
}

func TestLocalBusScopesByEvent(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	ch, cancel := bus.Subscribe(ctx, "ev1")
	defer cancel()

	bus.Publish(ctx, Change{EventID: "ev2", Collection: "attendees", ID: "a1", Action: "updated"})

	select {
	case got := <-ch:
		t.Fatalf("subscriber for ev1 received %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	ch, cancel := bus.Subscribe(ctx, "ev1")
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	// publishing after cancel must not panic
	bus.Publish(ctx, Change{EventID: "ev1"})
}
