package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer dials gorilla websocket connections. A zero ReadTimeout
// disables the read deadline.
type WebsocketDialer struct {
	Dialer      *websocket.Dialer
	ReadTimeout time.Duration
	ReadLimit   int64
}

func (d WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = 1 << 22
	}
	ws.SetReadLimit(limit)
	c := &wsConn{ws: ws, timeout: d.ReadTimeout}
	ws.SetPingHandler(func(appData string) error {
		c.extend()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		if err == nil || errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
	ws.SetPongHandler(func(string) error {
		c.extend()
		return nil
	})
	return c, nil
}

type wsConn struct {
	ws      *websocket.Conn
	timeout time.Duration
}

func (c *wsConn) extend() {
	if c.timeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.timeout))
	}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	c.extend()
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, fmt.Errorf("ws read: %w", err)
	}
	return data, nil
}

func (c *wsConn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}
