package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/devicelink/internal/announce"
	"github.com/nerrad567/devicelink/internal/connection"
	"github.com/nerrad567/devicelink/internal/entity"
	"github.com/nerrad567/devicelink/internal/event"
	"github.com/nerrad567/devicelink/internal/history"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
	"github.com/nerrad567/devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/devicelink/internal/store"
	"github.com/nerrad567/devicelink/internal/transport"
)

// stateEntity is the device-local identifier for the entity exposing a
// device's decoded payload.
const stateEntity = "state"

// app wires the config store's change hooks to connection supervision
// and entity registration.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	bus       *event.Bus
	manager   *connection.Manager
	store     *store.Store
	registry  *entity.Registry
	syncer    *entity.Syncer
	recorder  *history.Recorder   // nil when InfluxDB is disabled
	announcer *announce.Announcer // nil when MQTT is disabled
	cache     *payloadCache

	httpClient http.Client
}

// deviceAdded starts supervision for a new or updated device config.
func (a *app) deviceAdded(cfg *store.DeviceConfig) {
	// Updates re-register from scratch so address or kind changes take effect.
	if _, err := a.manager.Device(cfg.ID); err == nil {
		if tdErr := a.manager.Teardown(cfg.ID); tdErr != nil {
			a.log.Warn("failed to tear down device before update", "device", cfg.ID, "error", tdErr)
		}
	}

	strategy, err := a.buildStrategy(cfg)
	if err != nil {
		a.log.Error("failed to build transport for device", "device", cfg.ID, "kind", cfg.Kind, "error", err)
		return
	}

	if _, err := a.manager.Register(cfg.ID, strategy); err != nil {
		a.log.Error("failed to register device", "device", cfg.ID, "error", err)
		return
	}

	handle := a.pushToIntegration()
	if a.recorder != nil {
		handle = a.recorder.WrapHandle(handle)
	}
	a.registry.Register(
		entity.ID{Device: cfg.ID, Local: stateEntity},
		a.cache.provider(cfg.ID),
		handle,
	)

	a.log.Info("device configured", "device", cfg.ID, "kind", cfg.Kind, "address", cfg.Address)
}

// deviceRemoved tears down supervision for a removed device.
// A nil cfg means the whole store was cleared.
func (a *app) deviceRemoved(cfg *store.DeviceConfig) {
	if cfg == nil {
		for _, dev := range a.manager.Devices() {
			a.removeDevice(dev.ID())
		}
		return
	}
	a.removeDevice(cfg.ID)
}

func (a *app) removeDevice(id string) {
	if err := a.manager.Teardown(id); err != nil && !errors.Is(err, connection.ErrDeviceNotFound) {
		a.log.Warn("failed to tear down device", "device", id, "error", err)
	}

	for _, eid := range a.registry.DeviceEntities(id) {
		a.registry.Unregister(eid)
	}
	a.syncer.ForgetDevice(id)
	a.cache.drop(id)

	if a.announcer != nil {
		a.announcer.AnnounceRemoved(id)
	}

	a.log.Info("device removed", "device", id)
}

// pushToIntegration is the delivery end of the attribute pipeline. The
// standalone binary logs pushes; embedding integrations supply their own
// entity.Handle that forwards to their remote API instead.
func (a *app) pushToIntegration() entity.Handle {
	return entity.HandleFunc(func(_ context.Context, id entity.ID, attrs entity.Attributes) error {
		a.log.Info("entity update", "entity", id.String(), "attributes", attrs)
		return nil
	})
}

// buildStrategy maps a device config onto a transport strategy.
func (a *app) buildStrategy(cfg *store.DeviceConfig) (connection.Strategy, error) {
	switch cfg.Kind {
	case store.KindHTTP:
		return &transport.RequestResponse{
			Probe: func(ctx context.Context) error {
				_, err := a.fetchAttributes(ctx, cfg)
				return err
			},
		}, nil

	case store.KindPolling:
		interval := a.cfg.Connection.PollIntervalDuration()
		if cfg.PollInterval > 0 {
			interval = time.Duration(cfg.PollInterval) * time.Second
		}
		return &transport.Polling{
			Device:   cfg.ID,
			Bus:      a.bus,
			Interval: interval,
			Logger:   a.log,
			Probe: func(ctx context.Context) (any, error) {
				return a.fetchAttributes(ctx, cfg)
			},
		}, nil

	case store.KindWebSocket:
		return &transport.Streaming{
			Device:    cfg.ID,
			Bus:       a.bus,
			Heartbeat: a.cfg.Connection.HeartbeatDuration(),
			Logger:    a.log,
			Dial: func(ctx context.Context) (transport.MessageConn, error) {
				return transport.DialWebSocket(ctx, cfg.Address, authHeader(cfg))
			},
			Handle: func(data []byte) (any, error) {
				return a.decodePayload(cfg.ID, data)
			},
		}, nil

	case store.KindTCP, store.KindUnix:
		return &transport.Socket{
			Device:    cfg.ID,
			Bus:       a.bus,
			Address:   cfg.Address,
			Heartbeat: a.cfg.Connection.HeartbeatDuration(),
			Logger:    a.log,
			Read: func(_ net.Conn, r *bufio.Reader) (any, error) {
				line, err := r.ReadBytes('\n')
				if err != nil {
					return nil, err
				}
				return a.decodePayload(cfg.ID, line)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported device kind %q", cfg.Kind)
	}
}

// fetchAttributes performs an HTTP GET against the device address and
// decodes the JSON response into attributes. The decoded payload is
// cached so entity providers serve it on the next refresh.
func (a *app) fetchAttributes(ctx context.Context, cfg *store.DeviceConfig) (entity.Attributes, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", cfg.ID, err)
	}
	for k, vs := range authHeader(cfg) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, connection.NewAuthError(fmt.Errorf("device returned status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("device returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", cfg.ID, err)
	}

	attrs := entity.Attributes(payload)
	a.cache.merge(cfg.ID, attrs)
	return attrs, nil
}

// decodePayload decodes a JSON message from a streaming or socket device
// and merges it into the payload cache.
func (a *app) decodePayload(device string, data []byte) (any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrMalformedMessage, err)
	}
	if len(payload) == 0 {
		// Keepalive frame, nothing to publish.
		return nil, nil
	}

	attrs := entity.Attributes(payload)
	a.cache.merge(device, attrs)
	return attrs, nil
}

// authHeader builds request headers from the device's settings.
// An "auth_token" setting becomes a bearer Authorization header.
func authHeader(cfg *store.DeviceConfig) http.Header {
	token, ok := cfg.Settings["auth_token"].(string)
	if !ok || token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// bookkeeping persists connection outcomes on the stored configs so the
// API can report last-seen and last-error across restarts.
func (a *app) bookkeeping(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case event.Connected:
				if err := a.store.MarkSeen(ctx, ev.Device, ev.Time); err != nil && !errors.Is(err, store.ErrNotFound) {
					a.log.Warn("failed to record last seen", "device", ev.Device, "error", err)
				}
			case event.ConnectionError:
				if err := a.store.MarkError(ctx, ev.Device, ev.Err); err != nil && !errors.Is(err, store.ErrNotFound) {
					a.log.Warn("failed to record last error", "device", ev.Device, "error", err)
				}
			}
		}
	}
}

// payloadCache holds the most recent decoded payload per device. Entity
// providers read from it; transports write to it before publishing, so a
// refresh triggered by an update event always sees the new payload.
type payloadCache struct {
	mu   sync.RWMutex
	data map[string]entity.Attributes
}

func newPayloadCache() *payloadCache {
	return &payloadCache{data: make(map[string]entity.Attributes)}
}

// merge overlays attrs onto the cached payload for device.
func (c *payloadCache) merge(device string, attrs entity.Attributes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.data[device]
	if current == nil {
		c.data[device] = attrs.Clone()
		return
	}
	next := current.Clone()
	for k, v := range attrs {
		next[k] = v
	}
	c.data[device] = next
}

// get returns a copy of the cached payload for device.
func (c *payloadCache) get(device string) entity.Attributes {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[device].Clone()
}

// drop forgets the cached payload for device.
func (c *payloadCache) drop(device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, device)
}

// provider returns an entity provider serving the cached payload.
func (c *payloadCache) provider(device string) entity.Provider {
	return func(_ context.Context) (entity.Attributes, error) {
		attrs := c.get(device)
		if attrs == nil {
			return entity.Attributes{}, nil
		}
		return attrs, nil
	}
}
