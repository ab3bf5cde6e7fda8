package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/api"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/handlers"
	"github.com/fathima-sithara/realtime-service/internal/kafka"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	var zl *zap.Logger
	if cfg.App.Env == "development" {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	logger := zl.Sugar()
	defer func() { _ = zl.Sync() }()

	store, err := repository.NewMongoStore(context.Background(), cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = store.Disconnect(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	presStore := presence.NewRedisStore(rdb, cfg.Redis.Prefix, 24*time.Hour)
	registry := presence.NewRegistry(presStore, logger)
	hub := ws.NewHub(logger)

	nodeID := cfg.App.NodeID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	bridge := ws.NewBridge(hub, rdb, cfg.Redis.Prefix+":ws:global", nodeID, logger)
	bridge.Start()
	defer bridge.Stop()

	var notifier service.Notifier
	var kprod *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		kprod = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer func() { _ = kprod.Close() }()
		notifier = kprod
	}

	dispatch := service.NewFanOut(hub, registry, bridge, notifier, logger)
	messages := service.NewMessageService(store, registry, dispatch, logger)
	groups := service.NewGroupService(store, registry, dispatch, logger)

	wsh := handlers.NewWSHandler(hub, registry, dispatch, messages, groups, handlers.Options{
		JWTSecret:           cfg.JWT.Secret,
		TrustClientIdentity: cfg.App.TrustClientIdentity,
		PingInterval:        cfg.PingInterval,
		WriteDeadline:       cfg.WriteDeadline,
		MaxMessageSize:      cfg.WS.MaxMessageSizeBytes,
		InboundPerSecond:    cfg.WS.InboundPerSecond,
	}, logger)

	app := api.NewServer(wsh, presStore)

	go func() {
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			logger.Fatalw("server listen", "err", err)
		}
	}()
	logger.Infow("realtime-service started", "port", cfg.App.Port, "node", nodeID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
	logger.Info("realtime-service stopped")
}
