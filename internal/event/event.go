package event

import "time"

// Type identifies the kind of event flowing through the bus.
type Type int

const (
	// Connected signals that a device connection was established.
	Connected Type = iota

	// Disconnected signals that a device connection was torn down deliberately.
	Disconnected

	// ConnectionError signals a failed connect attempt or a lost link.
	ConnectionError

	// Update carries fresh data received from a device.
	Update
)

// String returns a human-readable name for the event type.
func (t Type) String() string {
	switch t {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case ConnectionError:
		return "connection_error"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// Event is a single occurrence on the bus.
//
// Device is always set. Entity is the device-local entity identifier and is
// only set on Update events that target a specific entity; an empty Entity on
// an Update means the whole device should be refreshed.
type Event struct {
	Type    Type
	Device  string
	Entity  string
	Payload any
	Err     string
	Time    time.Time
}
