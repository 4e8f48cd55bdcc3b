package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one subscriber connection. The hub owns it for its connected
// lifetime and closes it when pruned.
type Conn interface {
	// WriteMessage sends one text frame to the peer.
	WriteMessage(data []byte) error

	// Close tears down the connection.
	Close() error
}

// wsConn adapts a gorilla websocket connection. Writes are serialized
// with a mutex; gorilla connections permit only one concurrent writer.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
}

// NewWSConn wraps a websocket connection for hub use.
func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) Conn {
	return &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
