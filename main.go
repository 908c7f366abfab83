package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rcn123/rpg-lobby/internal/di"
	"github.com/rcn123/rpg-lobby/pkg/config"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	"github.com/rcn123/rpg-lobby/pkg/middleware"
	pkgredis "github.com/rcn123/rpg-lobby/pkg/redis"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "rpg-lobby"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	if err := di.InitObservability(ctx, cfg, serviceName); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting RPG lobby...", zap.String("store", cfg.Store.Driver))

	store, err := di.OpenStore(ctx, cfg)
	if err != nil {
		appLog.Fatal("Store connection failed", zap.Error(err))
	}
	defer store.Close()

	redisClient := di.OpenRedis(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
		appLog.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	container := di.NewContainer(&di.ContainerConfig{
		Store:      store,
		Redis:      redisClient,
		SessionTTL: cfg.Cache.SessionTTL,
		ListTTL:    cfg.Cache.ListTTL,
		EventTopic: cfg.Kafka.Topic,
	})

	verifier, err := middleware.NewTokenVerifier(&middleware.AuthConfig{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		CacheTTL: cfg.Auth.TokenCacheTTL,
	})
	if err != nil {
		appLog.Fatal("Token verifier setup failed", zap.Error(err))
	}
	defer verifier.Stop()

	// Relay outbox events from this process when no standalone relay runs
	if cfg.Outbox.Embedded {
		relay, err := di.NewRelay(ctx, cfg, store, serviceName)
		if err != nil {
			appLog.Fatal("Outbox relay setup failed", zap.Error(err))
		}
		if err := relay.Worker.Start(ctx); err != nil {
			appLog.Fatal("Outbox relay start failed", zap.Error(err))
		}
		defer relay.Close()
		appLog.Info("Embedded outbox relay started")
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, container, verifier, redisClient)

	cors, err := middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins})
	if err != nil {
		appLog.Fatal("CORS setup failed", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           cors(router),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info("RPG lobby listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}

func newRouter(cfg *config.Config, container *di.Container, verifier *middleware.TokenVerifier, redisClient *pkgredis.Client) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware("/health", "/ready"))
	router.Use(middleware.Logger(logger.Get(), "/health", "/ready"))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Idempotency and shared rate limits need Redis. Without it the
	// limiter falls back to in-process buckets.
	var idemStore middleware.RedisClient
	if redisClient != nil {
		idemStore = redisClient
	}
	idempotency := middleware.Idempotency(middleware.DefaultIdempotencyConfig(idemStore))

	rateCfg := middleware.DefaultRateLimitConfig()
	rateCfg.RedisClient = redisClient
	rateLimit := middleware.RateLimit(middleware.NewLimiter(rateCfg), rateCfg)

	auth := middleware.RequireAuth(verifier)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": serviceName,
				"store":   container.Store.Driver,
				"cache":   redisClient != nil,
			})
		})

		v1.GET("/game-systems", container.SessionHandler.GameSystems)
		v1.GET("/me/sessions", auth, container.SessionHandler.ListMySessions)

		sessions := v1.Group("/sessions")
		{
			// Read operations are public
			sessions.GET("", container.SessionHandler.ListSessions)
			sessions.GET("/:id", container.SessionHandler.GetSession)
			sessions.GET("/:id/participants", container.ParticipationHandler.GetParticipants)

			// Write operations with idempotency
			sessions.POST("", auth, idempotency, container.SessionHandler.CreateSession)
			sessions.PUT("/:id", auth, idempotency, container.SessionHandler.UpdateSession)
			sessions.DELETE("/:id", auth, idempotency, container.SessionHandler.DeleteSession)

			// Admission is rate limited per user
			sessions.POST("/:id/join", auth, rateLimit, idempotency, container.ParticipationHandler.Join)
			sessions.POST("/:id/waiting-list", auth, rateLimit, idempotency, container.ParticipationHandler.JoinWaitingList)
			sessions.POST("/:id/leave", auth, rateLimit, idempotency, container.ParticipationHandler.Leave)
		}
	}

	return router
}
