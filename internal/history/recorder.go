package history

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/devicelink/internal/entity"
	"github.com/nerrad567/devicelink/internal/event"
)

// Writer is the subset of the time-series client the recorder needs.
type Writer interface {
	WriteAttribute(device, entity, attribute string, value float64)
	WriteConnectionEvent(device, eventType, detail string)
}

// Logger is the minimal logging interface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Stats is a snapshot of recorder counters.
type Stats struct {
	// Samples is the number of attribute samples written.
	Samples uint64

	// Events is the number of connection events written.
	Events uint64

	// Skipped is the number of attribute values with no numeric form.
	Skipped uint64
}

// Recorder writes connection events and attribute samples to a Writer.
//
// Thread Safety: all methods are safe for concurrent use.
type Recorder struct {
	writer Writer
	logger Logger

	samples atomic.Uint64
	events  atomic.Uint64
	skipped atomic.Uint64
}

// NewRecorder creates a recorder over the given writer.
// A nil logger disables logging.
func NewRecorder(writer Writer, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{writer: writer, logger: logger}
}

// Run consumes lifecycle events from the subscription until the context
// is cancelled or the subscription closes. Update events are ignored
// here; attribute history flows through WrapHandle instead.
func (r *Recorder) Run(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			r.handle(ev)
		}
	}
}

func (r *Recorder) handle(ev event.Event) {
	switch ev.Type {
	case event.Connected, event.Disconnected, event.ConnectionError:
		r.writer.WriteConnectionEvent(ev.Device, ev.Type.String(), ev.Err)
		r.events.Add(1)
	}
}

// WrapHandle returns a handle that records pushed attributes before
// forwarding them to next. Recording happens only when next accepts the
// push, so failed deliveries leave no trace in history.
func (r *Recorder) WrapHandle(next entity.Handle) entity.Handle {
	return entity.HandleFunc(func(ctx context.Context, id entity.ID, attrs entity.Attributes) error {
		if err := next.PushUpdate(ctx, id, attrs); err != nil {
			return err
		}
		r.record(id, attrs)
		return nil
	})
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Samples: r.samples.Load(),
		Events:  r.events.Load(),
		Skipped: r.skipped.Load(),
	}
}

func (r *Recorder) record(id entity.ID, attrs entity.Attributes) {
	for name, value := range attrs {
		f, ok := numericValue(value)
		if !ok {
			r.skipped.Add(1)
			r.logger.Debug("skipping non-numeric attribute",
				"entity", id.String(), "attribute", name)
			continue
		}
		r.writer.WriteAttribute(id.Device, id.Local, name, f)
		r.samples.Add(1)
	}
}

// numericValue converts an attribute value to float64 where a sensible
// numeric form exists. Booleans map to 0 and 1.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
