package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber channel depth used by Subscribe.
const DefaultBufferSize = 64

// Logger is the minimal logging interface the bus requires.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}

// Bus fans events out to subscribers.
//
// Each subscriber receives events in publish order on its own buffered
// channel. Publish never blocks: if a subscriber's buffer is full the event
// is dropped for that subscriber, logged, and counted.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	logger Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates an event bus. A nil logger disables drop logging.
func NewBus(logger Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscription is a single subscriber's view of the bus.
type Subscription struct {
	id     string
	device string
	ch     chan Event
	bus    *Bus

	closeOnce sync.Once
	dropped   atomic.Uint64
}

// Subscribe registers a subscriber with the default buffer size.
//
// device filters delivery to events for that device; the empty string
// subscribes to all devices.
func (b *Bus) Subscribe(device string) *Subscription {
	return b.SubscribeBuffered(device, DefaultBufferSize)
}

// SubscribeBuffered registers a subscriber with an explicit buffer size.
// Slow consumers should size their buffer for their worst-case backlog.
func (b *Bus) SubscribeBuffered(device string, size int) *Subscription {
	if size <= 0 {
		size = DefaultBufferSize
	}

	sub := &Subscription{
		id:     uuid.New().String(),
		device: device,
		ch:     make(chan Event, size),
		bus:    b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closeOnce.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub.id] = sub

	return sub
}

// Publish delivers an event to all current subscribers matching its device.
// A zero Time is stamped with the current time.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.device != "" && sub.device != ev.Device {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			b.logger.Warn("event dropped for slow subscriber",
				"subscription", sub.id,
				"device", ev.Device,
				"type", ev.Type.String())
		}
	}
}

// Events returns the channel events are delivered on. The channel is closed
// when the subscription or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber has missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close removes the subscription from the bus and closes its channel.
// Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ch) })
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Dropped     uint64
	Subscribers int
}

// Stats returns current bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: n,
	}
}

// Close shuts the bus down and closes every subscriber channel.
// Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		delete(b.subs, id)
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.ch) })
	}
}
