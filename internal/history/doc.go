// Package history records device activity into time-series storage.
//
// The Recorder consumes connection lifecycle events from an event bus
// subscription and turns attribute pushes into numeric samples. It sits
// between the synchronizer and the integration handle as middleware, so
// every attribute that reaches the integration is also recorded.
//
// Only values with a numeric representation (numbers and booleans) are
// recorded. Strings and structured payloads are skipped.
//
// Recording is best-effort. A missing or failed time-series backend
// never blocks attribute delivery.
package history
