package main

import (
	"context"
	"log"
	"time"

	"github.com/rcn123/rpg-lobby/internal/di"
	"github.com/rcn123/rpg-lobby/pkg/config"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	"go.uber.org/zap"
)

// migrate applies the embedded schema for the configured store and exits.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "rpg-lobby-migrate",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg.Store.AutoMigrate = true
	store, err := di.OpenStore(ctx, cfg)
	if err != nil {
		logger.Get().Fatal("Migration failed", zap.String("store", cfg.Store.Driver), zap.Error(err))
	}
	store.Close()

	logger.Get().Info("Schema is up to date", zap.String("store", cfg.Store.Driver))
}
