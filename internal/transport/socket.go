package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/devicelink/internal/connection"
	"github.com/nerrad567/devicelink/internal/event"
)

// Socket is the strategy for devices speaking a raw byte protocol over TCP
// or a Unix domain socket.
//
// The device integration supplies the protocol: Open performs any handshake
// after the socket connects, Read blocks for one complete message. Liveness
// is enforced with a read deadline per message; a Read that returns
// ErrMalformedMessage discards that message and keeps the link.
type Socket struct {
	// Device is the identifier stamped on published events. Required.
	Device string

	// Bus receives Update events. Required.
	Bus Publisher

	// Address is the endpoint, "tcp://host:port" or "unix:///path". Required.
	Address string

	// Open runs a protocol handshake on the fresh socket. Optional.
	Open func(ctx context.Context, conn net.Conn) error

	// Read blocks until one complete message is read and returns its decoded
	// payload. The buffered reader persists for the life of the link, so
	// line- and frame-based protocols both read safely; conn is available
	// for protocols that must write. A nil payload is not published. Required.
	Read func(conn net.Conn, r *bufio.Reader) (any, error)

	// Heartbeat is the idle timeout. Defaults to DefaultHeartbeat.
	Heartbeat time.Duration

	// Logger receives link logs. Optional.
	Logger Logger
}

// Connect dials the socket and runs the Open handshake.
func (s *Socket) Connect(ctx context.Context) (connection.Session, error) {
	network, addr, err := parseAddress(s.Address)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	if s.Open != nil {
		if err := s.Open(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &socketSession{s: s, conn: conn, reader: bufio.NewReader(conn)}, nil
}

// parseAddress splits a "tcp://host:port" or "unix:///path" endpoint into
// network and address for net.Dial.
func parseAddress(address string) (network, addr string, err error) {
	switch {
	case strings.HasPrefix(address, "tcp://"):
		addr = strings.TrimPrefix(address, "tcp://")
		if addr == "" {
			return "", "", fmt.Errorf("transport: empty tcp address in %q", address)
		}
		return "tcp", addr, nil
	case strings.HasPrefix(address, "unix://"):
		addr = strings.TrimPrefix(address, "unix://")
		if addr == "" {
			return "", "", fmt.Errorf("transport: empty unix path in %q", address)
		}
		return "unix", addr, nil
	default:
		return "", "", fmt.Errorf("transport: address %q must start with tcp:// or unix://", address)
	}
}

type socketSession struct {
	s      *Socket
	conn   net.Conn
	reader *bufio.Reader

	closeOnce sync.Once
}

func (ss *socketSession) Serve(ctx context.Context) error {
	heartbeat := ss.s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	logger := ss.s.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	// Unblock a pending Read when the supervisor cancels us.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ss.Close()
		case <-stop:
		}
	}()

	for {
		if err := ss.conn.SetReadDeadline(time.Now().Add(heartbeat)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		payload, err := ss.s.Read(ss.conn, ss.reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return ErrHeartbeatTimeout
			}
			if errors.Is(err, ErrMalformedMessage) {
				logger.Warn("discarding malformed message",
					"device", ss.s.Device, "error", err)
				continue
			}
			return err
		}

		if payload != nil {
			ss.s.Bus.Publish(event.Event{
				Type:    event.Update,
				Device:  ss.s.Device,
				Payload: payload,
			})
		}
	}
}

func (ss *socketSession) Close() error {
	var err error
	ss.closeOnce.Do(func() {
		err = ss.conn.Close()
	})
	return err
}
