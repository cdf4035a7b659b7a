package broadcast

import (
	"context"
	"encoding/json"

	"pokertable-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisBroadcaster struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisBroadcaster(rdb *redis.Client, prefix string) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, prefix: prefix}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Log.Warn("broadcast encode failed", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	for _, topic := range topicsFor(b.prefix, evt) {
		if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
			logger.Log.Warn("broadcast publish failed",
				zap.String("topic", topic),
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
		}
	}
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	ps := b.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
				logger.Log.Warn("broadcast subscriber full", zap.String("topic", topic))
			}
		}
	}()
	return out, func() { _ = ps.Close() }, nil
}
