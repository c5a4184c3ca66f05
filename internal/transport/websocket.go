package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/devicelink/internal/connection"
)

// wsPingInterval is how often client pings are sent to keep the link alive
// through idle proxies. It should be well under any Heartbeat in use.
const wsPingInterval = 25 * time.Second

// wsWriteWait bounds a single control frame write.
const wsWriteWait = 10 * time.Second

// DialWebSocket establishes a WebSocket MessageConn for use with Streaming.
//
// An HTTP 401 or 403 response during the handshake is reported as an
// authentication failure so the supervisor budgets it instead of retrying
// forever. The connection pings the server periodically; pongs count as
// traffic only insofar as real messages do, so the Heartbeat idle timeout
// still governs liveness.
func DialWebSocket(ctx context.Context, url string, header http.Header) (MessageConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, connection.NewAuthError(err)
		}
		return nil, err
	}

	ws := &wsConn{
		conn: conn,
		stop: make(chan struct{}),
	}
	go ws.pingLoop()

	return ws, nil
}

type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	stop      chan struct{}
}

// Receive reads the next text or binary message. The ctx deadline is applied
// as the read deadline, which is how the Streaming heartbeat reaches the
// underlying socket. Cancelling ctx expires the read immediately so a
// blocked ReadMessage unblocks.
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	_, data, err := c.conn.ReadMessage()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, err
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// Close sends a close frame on a best-effort basis and drops the connection.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		err = c.conn.Close()
	})
	return err
}
