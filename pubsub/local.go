package pubsub

import (
	"context"
	"sync"
	"whiteboard-server/core"
)

// LocalBus is the single-process core.MessageBus. Publish delivers to every
// subscriber synchronously; with one process the subscriber is the process
// itself, which keeps the degraded-delivery path exercised in tests.
type LocalBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]func(core.Envelope)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subscribers: make(map[int]func(core.Envelope))}
}

func (b *LocalBus) Publish(ctx context.Context, envelope core.Envelope) error {
	b.mu.RLock()
	fns := make([]func(core.Envelope), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(envelope)
	}
	return nil
}

// Subscribe registers fn and blocks until ctx is done, matching the
// lifetime contract of the distributed implementation.
func (b *LocalBus) Subscribe(ctx context.Context, fn func(core.Envelope)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
	return ctx.Err()
}
