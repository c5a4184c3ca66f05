package event

import (
	"testing"
	"time"
)

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("lamp-1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: Update, Device: "lamp-1", Payload: i})
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Payload != i {
				t.Fatalf("event %d: payload = %v, want %d", i, ev.Payload, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBus_DeviceFilter(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	lampSub := bus.Subscribe("lamp-1")
	defer lampSub.Close()
	allSub := bus.Subscribe("")
	defer allSub.Close()

	bus.Publish(Event{Type: Update, Device: "lamp-1"})
	bus.Publish(Event{Type: Update, Device: "thermostat-1"})

	select {
	case ev := <-lampSub.Events():
		if ev.Device != "lamp-1" {
			t.Errorf("filtered sub received event for %q", ev.Device)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered sub received nothing")
	}

	select {
	case ev := <-lampSub.Events():
		t.Fatalf("filtered sub received extra event for %q", ev.Device)
	default:
	}

	for _, want := range []string{"lamp-1", "thermostat-1"} {
		select {
		case ev := <-allSub.Events():
			if ev.Device != want {
				t.Errorf("all-devices sub: device = %q, want %q", ev.Device, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("all-devices sub missing event for %q", want)
		}
	}
}

func TestBus_EntityTargeting(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("av-1")
	defer sub.Close()

	bus.Publish(Event{Type: Update, Device: "av-1", Entity: "zone-2"})

	ev := <-sub.Events()
	if ev.Entity != "zone-2" {
		t.Errorf("Entity = %q, want %q", ev.Entity, "zone-2")
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.SubscribeBuffered("dev", 2)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: Update, Device: "dev", Payload: i})
	}

	if got := sub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if got := bus.Stats().Dropped; got != 3 {
		t.Errorf("Stats().Dropped = %d, want 3", got)
	}

	// The buffered events survive in order.
	for i := 0; i < 2; i++ {
		ev := <-sub.Events()
		if ev.Payload != i {
			t.Errorf("event %d: payload = %v, want %d", i, ev.Payload, i)
		}
	}
}

func TestBus_PublishStampsTime(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("")
	defer sub.Close()

	before := time.Now()
	bus.Publish(Event{Type: Connected, Device: "dev"})

	ev := <-sub.Events()
	if ev.Time.Before(before) {
		t.Errorf("Time = %v, want >= %v", ev.Time, before)
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	// Publishing into the void must not block or panic.
	bus.Publish(Event{Type: Update, Device: "dev"})

	if got := bus.Stats().Published; got != 1 {
		t.Errorf("Stats().Published = %d, want 1", got)
	}
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe("dev")
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after Close")
	}

	// No delivery after close.
	bus.Publish(Event{Type: Update, Device: "dev"})
	if got := bus.Stats().Subscribers; got != 0 {
		t.Errorf("Stats().Subscribers = %d, want 0", got)
	}
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	bus := NewBus(nil)

	sub := bus.Subscribe("dev")
	bus.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("expected subscriber channel closed after bus Close")
	}

	// Closing the subscription afterwards must not panic.
	sub.Close()

	// Subscribing after close yields a closed channel.
	late := bus.Subscribe("dev")
	if _, ok := <-late.Events(); ok {
		t.Error("expected closed channel for post-close subscription")
	}
}

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Connected, "connected"},
		{Disconnected, "disconnected"},
		{ConnectionError, "connection_error"},
		{Update, "update"},
		{Type(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
