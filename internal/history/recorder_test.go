package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/devicelink/internal/entity"
	"github.com/nerrad567/devicelink/internal/event"
)

type sample struct {
	device    string
	entity    string
	attribute string
	value     float64
}

type connEvent struct {
	device string
	event  string
	detail string
}

// fakeWriter captures writes for assertions.
type fakeWriter struct {
	mu      sync.Mutex
	samples []sample
	events  []connEvent
}

func (w *fakeWriter) WriteAttribute(device, entity, attribute string, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, sample{device, entity, attribute, value})
}

func (w *fakeWriter) WriteConnectionEvent(device, eventType, detail string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, connEvent{device, eventType, detail})
}

func (w *fakeWriter) sampleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (w *fakeWriter) eventCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestRecorder_WrapHandle(t *testing.T) {
	ctx := context.Background()
	id := entity.ID{Device: "avr-1", Local: "main"}

	t.Run("records numeric and boolean attributes", func(t *testing.T) {
		writer := &fakeWriter{}
		rec := NewRecorder(writer, nil)

		var forwarded entity.Attributes
		inner := entity.HandleFunc(func(ctx context.Context, id entity.ID, attrs entity.Attributes) error {
			forwarded = attrs
			return nil
		})

		attrs := entity.Attributes{
			"volume": 42.5,
			"power":  true,
			"input":  "hdmi1",
			"zone":   3,
		}
		if err := rec.WrapHandle(inner).PushUpdate(ctx, id, attrs); err != nil {
			t.Fatalf("PushUpdate() error = %v", err)
		}

		if forwarded == nil {
			t.Fatal("inner handle was not called")
		}

		got := map[string]float64{}
		for _, s := range writer.samples {
			if s.device != "avr-1" || s.entity != "main" {
				t.Errorf("sample tagged %s/%s, want avr-1/main", s.device, s.entity)
			}
			got[s.attribute] = s.value
		}
		want := map[string]float64{"volume": 42.5, "power": 1, "zone": 3}
		if len(got) != len(want) {
			t.Fatalf("recorded %v, want %v", got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("sample %s = %v, want %v", k, got[k], v)
			}
		}

		stats := rec.Stats()
		if stats.Samples != 3 {
			t.Errorf("Samples = %d, want 3", stats.Samples)
		}
		if stats.Skipped != 1 {
			t.Errorf("Skipped = %d, want 1 (string attribute)", stats.Skipped)
		}
	})

	t.Run("failed push records nothing", func(t *testing.T) {
		writer := &fakeWriter{}
		rec := NewRecorder(writer, nil)

		pushErr := errors.New("device offline")
		inner := entity.HandleFunc(func(ctx context.Context, id entity.ID, attrs entity.Attributes) error {
			return pushErr
		})

		err := rec.WrapHandle(inner).PushUpdate(ctx, id, entity.Attributes{"volume": 10.0})
		if !errors.Is(err, pushErr) {
			t.Fatalf("PushUpdate() error = %v, want %v", err, pushErr)
		}
		if writer.sampleCount() != 0 {
			t.Errorf("recorded %d samples after failed push, want 0", writer.sampleCount())
		}
	})

	t.Run("nil attribute values are skipped", func(t *testing.T) {
		writer := &fakeWriter{}
		rec := NewRecorder(writer, nil)

		inner := entity.HandleFunc(func(ctx context.Context, id entity.ID, attrs entity.Attributes) error {
			return nil
		})

		attrs := entity.Attributes{"volume": nil}
		if err := rec.WrapHandle(inner).PushUpdate(ctx, id, attrs); err != nil {
			t.Fatalf("PushUpdate() error = %v", err)
		}
		if writer.sampleCount() != 0 {
			t.Errorf("recorded %d samples for nil value, want 0", writer.sampleCount())
		}
	})
}

func TestRecorder_Run(t *testing.T) {
	t.Run("records lifecycle events and ignores updates", func(t *testing.T) {
		writer := &fakeWriter{}
		rec := NewRecorder(writer, nil)
		bus := event.NewBus(nil)
		defer bus.Close()

		sub := bus.Subscribe("")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() {
			rec.Run(ctx, sub)
			close(done)
		}()

		bus.Publish(event.Event{Type: event.Connected, Device: "avr-1"})
		bus.Publish(event.Event{Type: event.Update, Device: "avr-1", Payload: "noise"})
		bus.Publish(event.Event{Type: event.ConnectionError, Device: "avr-1", Err: "timeout"})
		bus.Publish(event.Event{Type: event.Disconnected, Device: "avr-1"})

		waitFor(t, func() bool { return writer.eventCount() == 3 })

		writer.mu.Lock()
		if writer.events[1].event != event.ConnectionError.String() || writer.events[1].detail != "timeout" {
			t.Errorf("events[1] = %+v, want connection_error with timeout detail", writer.events[1])
		}
		writer.mu.Unlock()

		if got := rec.Stats().Events; got != 3 {
			t.Errorf("Events = %d, want 3", got)
		}

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after cancel")
		}
	})

	t.Run("stops when the subscription closes", func(t *testing.T) {
		writer := &fakeWriter{}
		rec := NewRecorder(writer, nil)
		bus := event.NewBus(nil)

		sub := bus.Subscribe("")
		done := make(chan struct{})
		go func() {
			rec.Run(context.Background(), sub)
			close(done)
		}()

		bus.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after bus close")
		}
	})
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{"float64", 42.5, 42.5, true},
		{"float32", float32(1.5), 1.5, true},
		{"int", -7, -7, true},
		{"int64", int64(9000), 9000, true},
		{"uint8", uint8(255), 255, true},
		{"bool true", true, 1, true},
		{"bool false", false, 0, true},
		{"string", "hdmi1", 0, false},
		{"nil", nil, 0, false},
		{"map", map[string]any{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := numericValue(tt.value)
			if ok != tt.ok || got != tt.want {
				t.Errorf("numericValue(%v) = (%v, %v), want (%v, %v)",
					tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
