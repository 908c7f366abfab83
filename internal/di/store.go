package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rcn123/rpg-lobby/internal/repository"
	"github.com/rcn123/rpg-lobby/migrations"
	"github.com/rcn123/rpg-lobby/pkg/config"
	"github.com/rcn123/rpg-lobby/pkg/database"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	"go.uber.org/zap"
)

// Store bundles the repositories of one entity store
type Store struct {
	Driver    string
	Sessions  repository.SessionRepository
	Admission repository.AdmissionRepository
	Outbox    repository.OutboxRepository

	healthCheck func(ctx context.Context) error
	close       func()
}

// HealthCheck pings the underlying database
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.healthCheck(ctx)
}

// Close releases the underlying database
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects to the store selected by STORE_DRIVER and applies the
// embedded migrations when STORE_AUTO_MIGRATE is set.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	log := logger.Get()

	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.Store.AutoMigrate {
			n, err := db.ApplyMigrations(ctx, migrations.SQLite())
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
			}
			log.Info("sqlite migrations applied", zap.Int("applied", n), zap.String("path", db.Path()))
		}
		return &Store{
			Driver:      config.StoreDriverSQLite,
			Sessions:    repository.NewSQLiteSessionRepository(db.DB()),
			Admission:   repository.NewSQLiteAdmissionRepository(db.DB(), cfg.Kafka.Topic),
			Outbox:      repository.NewSQLiteOutboxRepository(db.DB()),
			healthCheck: db.HealthCheck,
			close:       func() { _ = db.Close() },
		}, nil

	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
			LockTimeout:     cfg.Database.LockTimeout,
			ApplicationName: cfg.App.Name,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Store.AutoMigrate {
			n, err := db.ApplyMigrations(ctx, migrations.Postgres())
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to migrate postgres: %w", err)
			}
			log.Info("postgres migrations applied", zap.Int("applied", n))
		}
		return &Store{
			Driver:      config.StoreDriverPostgres,
			Sessions:    repository.NewPostgresSessionRepository(db.Pool()),
			Admission:   repository.NewPostgresAdmissionRepository(db.Pool(), cfg.Kafka.Topic),
			Outbox:      repository.NewPostgresOutboxRepository(db.Pool()),
			healthCheck: db.HealthCheck,
			close:       db.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
}
