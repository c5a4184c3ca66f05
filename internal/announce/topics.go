package announce

import "fmt"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "devicelink"

// Topics builds MQTT topic names under a common prefix.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics builder, falling back to DefaultTopicPrefix
// when prefix is empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// Status returns the service-level status topic.
//
// Example: devicelink/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// DeviceAvailability returns the retained availability topic for a device.
//
// Example: devicelink/device/avr-living-room/availability
func (t Topics) DeviceAvailability(device string) string {
	return fmt.Sprintf("%s/device/%s/availability", t.Prefix, device)
}

// DeviceEvent returns the lifecycle event topic for a device.
//
// Example: devicelink/device/avr-living-room/event
func (t Topics) DeviceEvent(device string) string {
	return fmt.Sprintf("%s/device/%s/event", t.Prefix, device)
}
