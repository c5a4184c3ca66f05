// Package transport implements the connection strategies devices are
// integrated through.
//
// Four strategies cover the common device interaction patterns:
//
//   - RequestResponse: no persistent link; connectivity is verified with a
//     probe and individual calls go through a circuit-breaking Caller.
//   - Polling: a persistent logical link maintained by probing the device on
//     an interval; each successful probe publishes an Update event.
//   - Streaming: a message-oriented link (typically WebSocket) with a
//     mandatory idle timeout standing in for a heartbeat.
//   - Socket: a raw byte-oriented TCP or Unix socket link with
//     device-supplied handshake and message reading.
//
// Every strategy implements connection.Strategy; the supervisor in the
// connection package owns scheduling, backoff, and state. Strategies only
// establish links and report their fate.
package transport
