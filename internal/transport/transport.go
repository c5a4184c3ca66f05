package transport

import (
	"errors"
	"time"

	"github.com/nerrad567/devicelink/internal/event"
)

// DefaultHeartbeat is the idle timeout applied when a strategy is configured
// without one. A link that stays silent this long is treated as dead.
const DefaultHeartbeat = 60 * time.Second

var (
	// ErrHeartbeatTimeout is returned by a session whose link went silent
	// past its idle timeout.
	ErrHeartbeatTimeout = errors.New("transport: heartbeat timeout")

	// ErrMalformedMessage marks a single message that could not be decoded.
	// Read and Handle callbacks return it (or wrap it) to discard the
	// message without dropping the link.
	ErrMalformedMessage = errors.New("transport: malformed message")
)

// Publisher receives data events from established links. *event.Bus
// satisfies it.
type Publisher interface {
	Publish(ev event.Event)
}

// Logger is the minimal logging interface transports require.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
