package di

import (
	"time"

	"github.com/rcn123/rpg-lobby/internal/handler"
	"github.com/rcn123/rpg-lobby/internal/repository"
	"github.com/rcn123/rpg-lobby/internal/service"
	pkgredis "github.com/rcn123/rpg-lobby/pkg/redis"
)

// Container holds all dependencies of the lobby API
type Container struct {
	// Infrastructure
	Store *Store
	Redis *pkgredis.Client

	// Repositories
	SessionRepo   repository.SessionRepository
	AdmissionRepo repository.AdmissionRepository
	SessionCache  repository.SessionCache

	// Services
	SessionService   service.SessionService
	AdmissionService service.AdmissionService

	// Handlers
	HealthHandler        *handler.HealthHandler
	SessionHandler       *handler.SessionHandler
	ParticipationHandler *handler.ParticipationHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Store *Store
	// Redis enables the read-through session cache when set
	Redis      *pkgredis.Client
	SessionTTL time.Duration
	ListTTL    time.Duration
	EventTopic string
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		Store:         cfg.Store,
		Redis:         cfg.Redis,
		SessionRepo:   cfg.Store.Sessions,
		AdmissionRepo: cfg.Store.Admission,
		SessionCache:  repository.NoopSessionCache{},
	}

	// Reads go through Redis when it is available
	var redisHealth handler.HealthChecker
	if cfg.Redis != nil {
		cached := repository.NewCachedSessionRepository(c.SessionRepo, cfg.Redis, cfg.SessionTTL, cfg.ListTTL)
		c.SessionRepo = cached
		c.SessionCache = cached
		redisHealth = cfg.Redis
	}

	// Initialize services
	c.SessionService = service.NewSessionService(
		c.SessionRepo,
		c.AdmissionRepo,
		&service.SessionServiceConfig{EventTopic: cfg.EventTopic},
	)
	c.AdmissionService = service.NewAdmissionService(c.AdmissionRepo, c.SessionCache)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.Store, redisHealth)
	c.SessionHandler = handler.NewSessionHandler(c.SessionService)
	c.ParticipationHandler = handler.NewParticipationHandler(c.AdmissionService)

	return c
}
