package transport

import (
	"context"
	"time"

	"github.com/nerrad567/devicelink/internal/connection"
	"github.com/nerrad567/devicelink/internal/event"
)

// Polling is the strategy for devices that must be asked for their state.
//
// Connect runs one probe to establish the logical link; the session then
// probes on Interval, publishing each payload as an Update event. A probe
// error drops the link and hands control back to the supervisor, so polling
// and reconnect backoff never run at the same time.
type Polling struct {
	// Device is the identifier stamped on published events. Required.
	Device string

	// Bus receives Update events. Required.
	Bus Publisher

	// Probe fetches the device's current state. Required.
	Probe func(ctx context.Context) (any, error)

	// Interval between probes. Defaults to 30 seconds.
	Interval time.Duration

	// Logger receives probe logs. Optional.
	Logger Logger
}

// Connect probes the device once to establish the logical link.
//
// The payload from the connect probe is retained and published as the
// session's first Update, so a freshly connected device is never stale for
// a full interval.
func (p *Polling) Connect(ctx context.Context) (connection.Session, error) {
	payload, err := p.Probe(ctx)
	if err != nil {
		return nil, err
	}
	return &pollingSession{p: p, first: payload}, nil
}

type pollingSession struct {
	p     *Polling
	first any
}

func (s *pollingSession) Serve(ctx context.Context) error {
	interval := s.p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if s.first != nil {
		s.publish(s.first)
		s.first = nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			payload, err := s.p.Probe(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			if payload != nil {
				s.publish(payload)
			}
		}
	}
}

func (s *pollingSession) publish(payload any) {
	s.p.Bus.Publish(event.Event{
		Type:    event.Update,
		Device:  s.p.Device,
		Payload: payload,
	})
}

func (s *pollingSession) Close() error { return nil }
