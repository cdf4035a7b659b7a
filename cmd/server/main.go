package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"pokertable-service/internal/api"
	"pokertable-service/internal/config"
	"pokertable-service/internal/repo"
	"pokertable-service/internal/service"
	"pokertable-service/internal/service/broadcast"
	pkgAuth "pokertable-service/pkg/auth"
	"pokertable-service/pkg/logger"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load Config
	config.LoadConfig(configPath)
	cfg := config.GlobalConfig

	// 2. Init Logger
	logger.InitLogger(cfg.Server.Mode)
	defer logger.Log.Sync()

	logger.Log.Info("Starting server...", zap.String("mode", cfg.Server.Mode))

	// 3. Init DB, Redis & broker
	repo.InitDB()
	repo.InitRedis()

	var bus interface {
		broadcast.Publisher
		broadcast.Subscriber
	}
	switch cfg.Broadcast.Driver {
	case "nats":
		repo.InitNATS()
		defer repo.NC.Drain()
		bus = broadcast.NewNATSBroadcaster(repo.NC, cfg.Broadcast.Prefix)
	default:
		bus = broadcast.NewRedisBroadcaster(repo.RDB, cfg.Broadcast.Prefix)
	}
	logger.Log.Info("Broadcast channel ready", zap.String("driver", cfg.Broadcast.Driver))

	// 3.5 Init Services
	services := service.NewContainer(repo.DB, bus, bus, repo.NewRedisLocker(repo.RDB), quartz.NewReal(), service.Config{
		ActionTimeout:        cfg.Engine.ActionTimeout(),
		CommunityCloseDelay:  cfg.Engine.CommunityCloseDelay(),
		TimeoutSweepInterval: cfg.Engine.TimeoutSweepInterval(),
		TableSweepInterval:   cfg.Engine.CloseSweepInterval(),
	})
	if err := services.Start(ctx); err != nil {
		logger.Log.Fatal("failed to start services", zap.Error(err))
	}

	// 4. Init Router
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	signer := pkgAuth.NewSigner(cfg.JWT.Secret, time.Duration(cfg.JWT.Expire)*time.Hour)
	api.RegisterRoutes(r, services, signer, cfg.Broadcast.Prefix)

	// 5. Start Server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Log.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}
