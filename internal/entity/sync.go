package entity

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/devicelink/internal/event"
)

// syncStripes is the size of the per-entity lock pool. Refreshes for
// different entities proceed in parallel; refreshes for the same entity
// serialise on its stripe.
const syncStripes = 32

// Logger is the minimal logging interface the syncer requires.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}

// SyncStats is a snapshot of syncer counters.
type SyncStats struct {
	Pushes  uint64
	Skipped uint64
	Errors  uint64
}

// Syncer keeps integration entities in step with device state.
//
// For every refresh it reads the entity's attributes through its Provider,
// diffs against the last successfully pushed snapshot, and pushes only the
// difference through the entity's Handle. Identical reads push nothing.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Syncer struct {
	registry *Registry
	logger   Logger

	mu   sync.Mutex
	last map[ID]Attributes

	stripes [syncStripes]sync.Mutex

	pushes  atomic.Uint64
	skipped atomic.Uint64
	errs    atomic.Uint64
}

// NewSyncer creates a syncer over the given registry. A nil logger disables
// logging.
func NewSyncer(registry *Registry, logger Logger) *Syncer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Syncer{
		registry: registry,
		logger:   logger,
		last:     make(map[ID]Attributes),
	}
}

// Refresh reads one entity's attributes and pushes any changes.
//
// An entity without a provider is push-only; Refresh logs and succeeds
// without touching it. Provider errors abort the refresh and leave the
// last-pushed snapshot intact.
func (s *Syncer) Refresh(ctx context.Context, id ID) error {
	reg, ok := s.registry.lookup(id)
	if !ok {
		return ErrEntityNotFound
	}
	if reg.provider == nil {
		s.logger.Warn("skipping refresh for push-only entity", "entity", id.String())
		return nil
	}

	attrs, err := reg.provider(ctx)
	if err != nil {
		s.errs.Add(1)
		return err
	}

	return s.push(ctx, reg, attrs)
}

// RefreshAll refreshes every entity owned by a device. Failures are
// collected; one entity's error does not stop the others.
func (s *Syncer) RefreshAll(ctx context.Context, device string) error {
	var errs []error
	for _, id := range s.registry.DeviceEntities(device) {
		if err := s.Refresh(ctx, id); err != nil && !errors.Is(err, ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetAvailability pushes the reserved "available" attribute for every entity
// of a device. It goes through the normal diff path, so repeated lifecycle
// events of the same kind push nothing after the first.
func (s *Syncer) SetAvailability(ctx context.Context, device string, available bool) {
	attrs := Attributes{AttrAvailable: available}
	for _, id := range s.registry.DeviceEntities(device) {
		reg, ok := s.registry.lookup(id)
		if !ok {
			continue
		}
		if err := s.push(ctx, reg, attrs); err != nil {
			s.logger.Warn("availability push failed",
				"entity", id.String(), "error", err)
		}
	}
}

// Forget drops the last-pushed snapshot for one entity, forcing the next
// refresh to push its full attribute set.
func (s *Syncer) Forget(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, id)
}

// ForgetDevice drops the snapshots of every entity owned by a device.
func (s *Syncer) ForgetDevice(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.last {
		if id.Device == device {
			delete(s.last, id)
		}
	}
}

// LastPushed returns a copy of the last successfully pushed attributes for
// an entity, nil if nothing has been pushed.
func (s *Syncer) LastPushed(id ID) Attributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[id].Clone()
}

// Stats returns syncer counters.
func (s *Syncer) Stats() SyncStats {
	return SyncStats{
		Pushes:  s.pushes.Load(),
		Skipped: s.skipped.Load(),
		Errors:  s.errs.Load(),
	}
}

// Run consumes lifecycle and data events until ctx ends or the subscription
// closes. It is the glue between the event bus and entity state:
//
//   - Connected: mark entities available and refresh them all
//   - Disconnected: mark unavailable and drop snapshots, so a later
//     reconnect pushes full state
//   - ConnectionError: mark unavailable
//   - Update: refresh the targeted entity, or all of the device's entities
//     when no target is set
func (s *Syncer) Run(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Syncer) handle(ctx context.Context, ev event.Event) {
	switch ev.Type {
	case event.Connected:
		s.SetAvailability(ctx, ev.Device, true)
		if err := s.RefreshAll(ctx, ev.Device); err != nil {
			s.logger.Warn("refresh after connect failed",
				"device", ev.Device, "error", err)
		}
	case event.Disconnected:
		s.SetAvailability(ctx, ev.Device, false)
		s.ForgetDevice(ev.Device)
	case event.ConnectionError:
		s.SetAvailability(ctx, ev.Device, false)
	case event.Update:
		if ev.Entity != "" {
			id := ID{Device: ev.Device, Local: ev.Entity}
			if err := s.Refresh(ctx, id); err != nil && !errors.Is(err, ErrEntityNotFound) {
				s.logger.Warn("entity refresh failed",
					"entity", id.String(), "error", err)
			}
			return
		}
		if err := s.RefreshAll(ctx, ev.Device); err != nil {
			s.logger.Warn("device refresh failed",
				"device", ev.Device, "error", err)
		}
	}
}

// push diffs next against the entity's last-pushed snapshot and pushes the
// changes. The snapshot only advances after a successful push, so a failed
// push is retried in full on the next refresh.
func (s *Syncer) push(ctx context.Context, reg *registration, next Attributes) error {
	stripe := s.stripe(reg.id)
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.Lock()
	last := s.last[reg.id]
	s.mu.Unlock()

	diff := Diff(last, next)
	if len(diff) == 0 {
		s.skipped.Add(1)
		return nil
	}
	if reg.handle == nil {
		return nil
	}

	if err := reg.handle.PushUpdate(ctx, reg.id, diff); err != nil {
		s.errs.Add(1)
		return err
	}

	s.mu.Lock()
	s.last[reg.id] = Merge(last, diff)
	s.mu.Unlock()
	s.pushes.Add(1)

	s.logger.Debug("pushed entity update",
		"entity", reg.id.String(), "attributes", diff.Keys())
	return nil
}

func (s *Syncer) stripe(id ID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id.Device))
	h.Write([]byte{0})
	h.Write([]byte(id.Local))
	return &s.stripes[h.Sum32()%syncStripes]
}
