package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/devicelink/internal/event"
	"github.com/nerrad567/devicelink/internal/infrastructure/config"
)

// Logger is the minimal logging interface the announcer needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Announcer mirrors device lifecycle events onto MQTT topics.
//
// Thread Safety: all methods are safe for concurrent use.
type Announcer struct {
	client pahomqtt.Client
	topics Topics
	qos    byte
	logger Logger

	connected bool
	connMu    sync.RWMutex
}

// Connect establishes a connection to the MQTT broker and publishes the
// service online status.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - logger: optional logger, nil disables logging
//
// Returns:
//   - *Announcer: Connected announcer ready for use
//   - error: If the initial connection fails within timeout
func Connect(cfg config.MQTTConfig, logger Logger) (*Announcer, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	topics := NewTopics(cfg.TopicPrefix)
	opts := buildClientOptions(cfg, topics)

	a := &Announcer{
		topics: topics,
		qos:    byte(cfg.QoS),
		logger: logger,
	}

	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		a.connMu.Lock()
		a.connected = true
		a.connMu.Unlock()

		// Re-assert online status on every (re)connect.
		client.Publish(topics.Status(), a.qos, true,
			buildStatusPayload(cfg.Broker.ClientID, "online", ""))
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		a.connMu.Lock()
		a.connected = false
		a.connMu.Unlock()
		logger.Warn("mqtt connection lost", "error", err)
	})

	a.client = pahomqtt.NewClient(opts)
	token := a.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timeout after %v", defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	a.connMu.Lock()
	a.connected = true
	a.connMu.Unlock()

	return a, nil
}

// IsConnected reports the current broker connection state.
func (a *Announcer) IsConnected() bool {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.connected && a.client.IsConnected()
}

// Run consumes lifecycle events from the subscription until the context
// is cancelled or the subscription closes.
func (a *Announcer) Run(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			a.handleEvent(ev)
		}
	}
}

// lifecyclePayload is the JSON shape published to device event topics.
type lifecyclePayload struct {
	Type   string    `json:"type"`
	Device string    `json:"device"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

func (a *Announcer) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.Connected:
		a.publishAvailability(ev.Device, "online")
	case event.Disconnected, event.ConnectionError:
		a.publishAvailability(ev.Device, "offline")
	default:
		// Update events carry device payloads, not availability.
		return
	}

	payload, err := json.Marshal(lifecyclePayload{
		Type:   ev.Type.String(),
		Device: ev.Device,
		Error:  ev.Err,
		Time:   ev.Time,
	})
	if err != nil {
		a.logger.Error("failed to marshal lifecycle event", "device", ev.Device, "error", err)
		return
	}

	a.client.Publish(a.topics.DeviceEvent(ev.Device), a.qos, false, payload)
}

// publishAvailability publishes retained availability for a device.
func (a *Announcer) publishAvailability(device, status string) {
	a.client.Publish(a.topics.DeviceAvailability(device), a.qos, true, status)
}

// AnnounceRemoved clears the retained availability topic for a device
// that is no longer configured. An empty retained payload removes the
// retained message from the broker.
func (a *Announcer) AnnounceRemoved(device string) {
	a.client.Publish(a.topics.DeviceAvailability(device), a.qos, true, "")
}

// Close publishes a graceful offline status and disconnects.
//
// The graceful status carries a different reason than the LWT so
// consumers can distinguish shutdown from a crash.
func (a *Announcer) Close() error {
	if a.client == nil {
		return nil
	}

	if a.IsConnected() {
		optsReader := a.client.OptionsReader()
		token := a.client.Publish(a.topics.Status(), a.qos, true,
			buildStatusPayload(optsReader.ClientID(), "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	a.client.Disconnect(defaultDisconnectQuiesce)

	a.connMu.Lock()
	a.connected = false
	a.connMu.Unlock()

	return nil
}
