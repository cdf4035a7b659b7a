package broadcast

import (
	"context"
	"encoding/json"

	"pokertable-service/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATSBroadcaster struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSBroadcaster(nc *nats.Conn, prefix string) *NATSBroadcaster {
	return &NATSBroadcaster{nc: nc, prefix: prefix}
}

func (b *NATSBroadcaster) Publish(_ context.Context, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Log.Warn("broadcast encode failed", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	for _, subject := range topicsFor(b.prefix, evt) {
		if err := b.nc.Publish(subject, data); err != nil {
			logger.Log.Warn("broadcast publish failed",
				zap.String("subject", subject),
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
		}
	}
}

func (b *NATSBroadcaster) Subscribe(_ context.Context, topic string) (<-chan []byte, func(), error) {
	raw := make(chan *nats.Msg, 16)
	sub, err := b.nc.ChanSubscribe(topic, raw)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-raw:
				select {
				case out <- msg.Data:
				default:
					logger.Log.Warn("broadcast subscriber full", zap.String("subject", topic))
				}
			case <-done:
				return
			}
		}
	}()
	cancel := func() {
		_ = sub.Unsubscribe()
		close(done)
	}
	return out, cancel, nil
}
