package pubsub

import (
	"context"
	"encoding/json"
	"whiteboard-server/core"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Channel is the single shared pub/sub channel every server process
// subscribes to. Delivery is best-effort: a process that cannot resolve the
// target user locally drops the envelope.
const Channel = "whiteboard:events"

// RedisBus bridges message delivery across server processes via Redis
// pub/sub.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, envelope core.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel, data).Err()
}

// Subscribe consumes the shared channel until ctx is done. Undecodable
// messages are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(core.Envelope)) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer func() {
		if err := sub.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close bus subscription")
		}
	}()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var envelope core.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				logrus.WithError(err).Warn("Dropping undecodable bus message")
				continue
			}
			fn(envelope)
		}
	}
}
