package store

import (
	"fmt"
	"time"
)

// Device kinds map to transport strategies.
const (
	// KindHTTP is a request-response device with no persistent link.
	KindHTTP = "http"

	// KindPolling is a device probed on an interval.
	KindPolling = "poll"

	// KindWebSocket is a device streaming state over WebSocket.
	KindWebSocket = "ws"

	// KindTCP is a device speaking a byte protocol over TCP.
	KindTCP = "tcp"

	// KindUnix is a device speaking a byte protocol over a Unix socket.
	KindUnix = "unix"
)

// DeviceConfig is one configured integration device.
type DeviceConfig struct {
	// ID uniquely identifies the device within this instance.
	ID string `json:"id"`

	// Name is the human-readable device name.
	Name string `json:"name"`

	// Kind selects the transport strategy. One of the Kind constants.
	Kind string `json:"kind"`

	// Address is the device endpoint. Its format depends on Kind:
	// a URL for http/poll/ws, "tcp://host:port" or "unix:///path" for sockets.
	Address string `json:"address"`

	// PollInterval overrides the default probe interval (seconds).
	// Only meaningful for polling devices. 0 uses the configured default.
	PollInterval int `json:"poll_interval_seconds,omitempty"`

	// Settings holds device-specific options (credentials, zones, protocol
	// quirks) opaque to the store.
	Settings map[string]any `json:"settings,omitempty"`

	// LastSeen is when the device last connected or delivered data.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// LastError is the most recent connection error, nil when healthy.
	LastError *string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the config for required fields and a known kind.
func (c *DeviceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidConfig)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: missing name for %q", ErrInvalidConfig, c.ID)
	}
	if c.Address == "" {
		return fmt.Errorf("%w: missing address for %q", ErrInvalidConfig, c.ID)
	}
	switch c.Kind {
	case KindHTTP, KindPolling, KindWebSocket, KindTCP, KindUnix:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q for %q", ErrInvalidConfig, c.Kind, c.ID)
	}
}

// Clone returns a deep copy of the config.
func (c *DeviceConfig) Clone() *DeviceConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Settings != nil {
		out.Settings = make(map[string]any, len(c.Settings))
		for k, v := range c.Settings {
			out.Settings[k] = v
		}
	}
	if c.LastSeen != nil {
		t := *c.LastSeen
		out.LastSeen = &t
	}
	if c.LastError != nil {
		s := *c.LastError
		out.LastError = &s
	}
	return &out
}
