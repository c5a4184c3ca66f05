package transport

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/devicelink/internal/connection"
	"github.com/nerrad567/devicelink/internal/event"
)

// MessageConn is a message-oriented device link. The WebSocket
// implementation lives in this package; tests supply their own.
type MessageConn interface {
	// Receive blocks until the next message arrives, the link fails, or
	// ctx expires.
	Receive(ctx context.Context) ([]byte, error)

	// Close shuts the link down. It must unblock a pending Receive.
	Close() error
}

// Streaming is the strategy for devices that push state over a persistent
// message link.
//
// Every receive is bounded by the Heartbeat idle timeout. A device that
// sends nothing for that long is indistinguishable from a dead link, so the
// session ends with ErrHeartbeatTimeout and the supervisor reconnects.
// Devices with no periodic traffic of their own need server pings or a
// generous Heartbeat.
type Streaming struct {
	// Device is the identifier stamped on published events. Required.
	Device string

	// Bus receives Update events. Required.
	Bus Publisher

	// Dial establishes the message link. Required.
	Dial func(ctx context.Context) (MessageConn, error)

	// Handle decodes one raw message into an Update payload. A nil payload
	// with nil error means the message carried nothing worth publishing,
	// such as a keepalive. An error discards the message without dropping
	// the link. Optional; when nil, raw bytes are published as-is.
	Handle func(data []byte) (any, error)

	// Heartbeat is the idle timeout. Defaults to DefaultHeartbeat.
	Heartbeat time.Duration

	// Logger receives link logs. Optional.
	Logger Logger
}

// Connect dials the message link.
func (s *Streaming) Connect(ctx context.Context) (connection.Session, error) {
	conn, err := s.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &streamingSession{s: s, conn: conn}, nil
}

type streamingSession struct {
	s    *Streaming
	conn MessageConn
}

func (ss *streamingSession) Serve(ctx context.Context) error {
	heartbeat := ss.s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	logger := ss.s.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	// Unblock a pending Receive when the supervisor cancels us, even if the
	// conn implementation only watches the socket.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ss.conn.Close()
		case <-stop:
		}
	}()

	for {
		rctx, cancel := context.WithTimeout(ctx, heartbeat)
		data, err := ss.conn.Receive(rctx)
		idle := rctx.Err() != nil && ctx.Err() == nil
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if idle {
				return ErrHeartbeatTimeout
			}
			return err
		}

		// A device that sends constantly never hits the receive error path,
		// so cancellation is checked here too.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payload := any(data)
		if ss.s.Handle != nil {
			payload, err = ss.s.Handle(data)
			if err != nil {
				logger.Warn("discarding malformed message",
					"device", ss.s.Device, "error", err)
				continue
			}
		}
		if payload == nil {
			continue
		}

		ss.s.Bus.Publish(event.Event{
			Type:    event.Update,
			Device:  ss.s.Device,
			Payload: payload,
		})
	}
}

func (ss *streamingSession) Close() error {
	err := ss.conn.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
