package connection

// State is the lifecycle state of a device connection.
type State int

const (
	// Disconnected means no link exists and none is being attempted.
	Disconnected State = iota

	// Connecting means a connect attempt is in flight.
	Connecting

	// Connected means the device link is established and serving.
	Connected

	// Reconnecting means a previous link was lost and the supervisor is
	// waiting out the backoff delay before the next attempt.
	Reconnecting

	// Failed means the retry budget is exhausted; only Reset leaves this state.
	Failed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
