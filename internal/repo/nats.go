package repo

import (
	"pokertable-service/internal/config"
	"pokertable-service/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var NC *nats.Conn

func InitNATS() {
	conf := config.GlobalConfig.NATS
	var err error
	NC, err = nats.Connect(conf.URL,
		nats.Name(conf.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
}
