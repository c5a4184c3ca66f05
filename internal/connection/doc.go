// Package connection supervises device connection lifecycles.
//
// Each registered device gets a supervisor goroutine that drives its
// transport strategy through a small state machine:
//
//	Disconnected -> Connecting -> Connected
//	                    |             |
//	                    v             v
//	                 Reconnecting <- (link lost)
//	                    |
//	                    v
//	                 Failed (retry budget exhausted)
//
// State only changes in response to transport outcomes: a connect attempt
// succeeding or failing, an established link dropping, or an explicit
// teardown. Reconnect delays come from a backoff.Policy and reset to zero
// on every successful connect. Lifecycle transitions are published to the
// event bus so other components can react without polling.
//
// Authentication failures are budgeted separately from transient errors:
// retrying a rejected credential forever is pointless, so after the
// configured number of consecutive auth failures the connection is marked
// Failed and stays down until Reset is called.
package connection
