package websocket

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeConn records written frames; shared by the registry and collab tests.
type fakeConn struct {
	mu         sync.Mutex
	frames     []Frame
	writeErr   error
	closed     bool
	closeCount int
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	frame, ok := v.(Frame)
	if !ok {
		return errors.New("unexpected write type")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCount++
	return nil
}

func (f *fakeConn) sent() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := make([]Frame, len(f.frames))
	copy(frames, f.frames)
	return frames
}

func (f *fakeConn) framesOfType(msgType string) []Frame {
	var matching []Frame
	for _, frame := range f.sent() {
		if frame.Type == msgType {
			matching = append(matching, frame)
		}
	}
	return matching
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}

	registry.Register("alice", conn)

	got, ok := registry.Get("alice")
	if !ok {
		t.Fatal("Get() did not find registered connection")
	}
	if got != conn {
		t.Error("Get() returned a different connection")
	}
}

func TestRegistry_RegisterReplacesAndClosesOld(t *testing.T) {
	registry := NewRegistry()
	old := &fakeConn{}
	replacement := &fakeConn{}

	registry.Register("alice", old)
	registry.Register("alice", replacement)

	got, ok := registry.Get("alice")
	if !ok || got != replacement {
		t.Fatal("Replacement connection not registered")
	}

	// The old handle is closed asynchronously.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		old.mu.Lock()
		closed := old.closed
		old.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("Replaced connection was never closed")
}

func TestRegistry_DeregisterIgnoresStaleConnection(t *testing.T) {
	registry := NewRegistry()
	old := &fakeConn{}
	replacement := &fakeConn{}

	registry.Register("alice", old)
	registry.Register("alice", replacement)

	// The old connection's cleanup must not evict the replacement.
	registry.Deregister("alice", old)

	if _, ok := registry.Get("alice"); !ok {
		t.Error("Stale deregister removed the replacement connection")
	}

	registry.Deregister("alice", replacement)
	if _, ok := registry.Get("alice"); ok {
		t.Error("Deregister did not remove the current connection")
	}
}

func TestRegistry_SendLocal(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{}
	registry.Register("alice", conn)

	if !registry.SendLocal("alice", MsgDrawElement, map[string]string{"roomId": "room-1"}) {
		t.Error("SendLocal() to a registered connection should report delivery")
	}

	frames := conn.sent()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Type != MsgDrawElement {
		t.Errorf("Frame type mismatch: got %q, want %q", frames[0].Type, MsgDrawElement)
	}
}

func TestRegistry_SendLocalMissingUser(t *testing.T) {
	registry := NewRegistry()

	if registry.SendLocal("ghost", MsgDrawElement, nil) {
		t.Error("SendLocal() to an unknown user should report non-delivery")
	}
}

func TestRegistry_SendLocalBrokenConnection(t *testing.T) {
	registry := NewRegistry()
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	registry.Register("alice", conn)

	if registry.SendLocal("alice", MsgDrawElement, nil) {
		t.Error("SendLocal() over a broken connection should report non-delivery")
	}
}
