package di

import (
	"context"
	"fmt"

	"github.com/rcn123/rpg-lobby/internal/metrics"
	"github.com/rcn123/rpg-lobby/pkg/config"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	pkgredis "github.com/rcn123/rpg-lobby/pkg/redis"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.uber.org/zap"
)

// InitObservability sets up the global logger, tracer and lobby metrics
// for a binary named service.
func InitObservability(ctx context.Context, cfg *config.Config, service string) error {
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: service,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    service,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := metrics.Init(); err != nil {
		logger.Get().Warn("lobby metrics unavailable", zap.Error(err))
	}
	return nil
}

// OpenRedis connects to Redis when it is enabled. A connection failure is
// logged and reported as a nil client so the API runs without the cache.
func OpenRedis(ctx context.Context, cfg *config.Config) *pkgredis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    2,
		RetryInterval: pkgredis.DefaultConfig().RetryInterval,
		EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		logger.Get().Warn("redis unavailable, running without cache", zap.Error(err))
		return nil
	}
	return client
}
