// Package announce publishes device availability over MQTT.
//
// The announcer consumes connection lifecycle events from an event bus
// subscription and mirrors them onto retained MQTT topics, so external
// consumers (dashboards, automations) always see current availability
// without querying the service.
//
// # Topic Layout
//
// All topics share a configurable prefix (default "devicelink"):
//
//	{prefix}/status                          service online/offline (retained, LWT)
//	{prefix}/device/{id}/availability        "online" or "offline" (retained)
//	{prefix}/device/{id}/event               lifecycle event JSON (not retained)
//
// The service status topic carries a Last Will and Testament so the
// broker flips it to offline if the process dies without a clean close.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The underlying paho client
// handles reconnection; retained availability survives broker restarts
// on brokers with persistence enabled.
package announce
