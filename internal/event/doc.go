// Package event provides the per-device event bus that decouples transports
// from the rest of the system.
//
// Transports and the connection supervisor publish lifecycle and data events;
// the entity syncer, history recorder, and availability announcer subscribe.
// Delivery is ordered per subscriber and at-least-once for subscribers that
// keep up. A subscriber whose buffer is full loses events; drops are logged
// and counted, never silent.
package event
