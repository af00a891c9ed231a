package websocket

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the live transport handle the registry holds per user. The
// concrete type wraps a gorilla connection; tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// gorillaConn serializes writes; gorilla connections allow only one
// concurrent writer.
type gorillaConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newConn(ws *websocket.Conn) *gorillaConn {
	return &gorillaConn{ws: ws}
}

func (c *gorillaConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *gorillaConn) Close() error {
	return c.ws.Close()
}
