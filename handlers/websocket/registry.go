package websocket

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry tracks the live connection per user on this process. It is never
// shared across processes; a user absent here may still be reachable through
// the message bus.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register stores conn as the user's live handle. A replaced handle is
// closed asynchronously so its read loop can finish cleanup on its own.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[userID]; ok && existing != conn {
		go func() {
			if err := existing.Close(); err != nil {
				logrus.WithFields(logrus.Fields{
					"user_id": userID,
					"error":   err,
				}).Debug("Failed to close replaced connection")
			}
		}()
	}
	r.conns[userID] = conn
}

// Deregister removes the user's handle only when it is still the given
// instance, so a stale connection cannot evict its replacement.
func (r *Registry) Deregister(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.conns[userID]; ok && registered == conn {
		delete(r.conns, userID)
	}
}

func (r *Registry) Get(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// SendLocal delivers a frame to the user's local connection. A missing or
// broken handle means "currently unreachable", not an error; the caller
// falls back to the bus when this returns false.
func (r *Registry) SendLocal(userID, msgType string, payload any) bool {
	conn, ok := r.Get(userID)
	if !ok {
		return false
	}

	if err := conn.WriteJSON(Frame{Type: msgType, Payload: payload}); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"type":    msgType,
			"error":   err,
		}).Warn("Failed to write to connection")
		return false
	}
	return true
}
