package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcn123/rpg-lobby/internal/di"
	"github.com/rcn123/rpg-lobby/pkg/config"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "rpg-lobby-outbox-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := di.InitObservability(ctx, cfg, serviceName); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()

	// The relay never migrates; the API or the migrate command owns the schema
	cfg.Store.AutoMigrate = false
	store, err := di.OpenStore(ctx, cfg)
	if err != nil {
		appLog.Fatal("Store connection failed", zap.Error(err))
	}
	defer store.Close()

	relay, err := di.NewRelay(ctx, cfg, store, serviceName)
	if err != nil {
		appLog.Fatal("Outbox relay setup failed", zap.Error(err))
	}
	defer relay.Close()

	if err := relay.Worker.Start(ctx); err != nil {
		appLog.Fatal("Outbox relay start failed", zap.Error(err))
	}
	appLog.Info("Outbox relay started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.Duration("poll_interval", cfg.Outbox.PollInterval),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down outbox relay...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}
}
