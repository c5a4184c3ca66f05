package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAttribute writes a single entity attribute sample.
//
// This is the primary method for recording entity state history.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - device: Device identifier (e.g., "avr-living-room")
//   - entity: Local entity identifier within the device (e.g., "zone2")
//   - attribute: The attribute name (e.g., "volume", "power")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteAttribute("avr-living-room", "main", "volume", 42.5)
func (c *Client) WriteAttribute(device, entity, attribute string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"entity_attributes",
		map[string]string{
			"device":    device,
			"entity":    entity,
			"attribute": attribute,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a device lifecycle transition.
//
// Used to chart connection stability over time. Each point carries
// a count of 1 so downstream queries can sum transitions per window.
//
// Parameters:
//   - device: Device identifier
//   - eventType: Lifecycle event name (e.g., "connected", "disconnected")
//   - detail: Optional error detail, empty when not applicable
func (c *Client) WriteConnectionEvent(device, eventType, detail string) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if detail != "" {
		fields["detail"] = detail
	}

	point := write.NewPoint(
		"connection_events",
		map[string]string{
			"device": device,
			"event":  eventType,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
