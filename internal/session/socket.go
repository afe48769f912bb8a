package session

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the minimal socket surface the session drives. Read returns one
// complete inbound frame.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a connection to the exchange endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer returns a Dialer backed by coder/websocket.
func WebsocketDialer() Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		c, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		// Exchange depth snapshots can be large.
		c.SetReadLimit(1 << 22)
		return &wsConn{conn: c}, nil
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if msgType != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "shutdown")
}
