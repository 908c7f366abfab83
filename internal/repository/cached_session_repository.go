package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	pkgredis "github.com/rcn123/rpg-lobby/pkg/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix  = "session:"
	listKeyPrefix     = "sessions:list:"
	listGenerationKey = "sessions:list:gen"
)

// CacheStore is the subset of the Redis client the session cache needs
type CacheStore interface {
	GetJSON(ctx context.Context, key string, v interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	GetInt64(ctx context.Context, key string) (int64, error)
}

// CachedSessionRepository is a read-through Redis cache in front of a
// SessionRepository. Single sessions are keyed by id. List pages are keyed
// by a generation counter that every write bumps, so stale pages are never
// served after a change and simply expire.
// Cache failures are logged and fall through to the store.
type CachedSessionRepository struct {
	next       SessionRepository
	cache      CacheStore
	sessionTTL time.Duration
	listTTL    time.Duration
	log        *logger.Logger
}

// NewCachedSessionRepository wraps next with a Redis cache
func NewCachedSessionRepository(next SessionRepository, cache CacheStore, sessionTTL, listTTL time.Duration) *CachedSessionRepository {
	return &CachedSessionRepository{
		next:       next,
		cache:      cache,
		sessionTTL: sessionTTL,
		listTTL:    listTTL,
		log:        logger.Get().With(zap.String("component", "session_cache")),
	}
}

// cachedSession carries the location separately since Session does not
// serialize it
type cachedSession struct {
	Session  *domain.Session `json:"session"`
	Location json.RawMessage `json:"location"`
}

type cachedPage struct {
	Items []cachedSession `json:"items"`
	Total int64           `json:"total"`
}

func toCached(s *domain.Session) (cachedSession, error) {
	loc, err := domain.EncodeLocation(s.Location)
	if err != nil {
		return cachedSession{}, err
	}
	return cachedSession{Session: s, Location: loc}, nil
}

func (c cachedSession) toDomain() (*domain.Session, error) {
	if c.Session == nil {
		return nil, errors.New("empty cache entry")
	}
	loc, err := domain.DecodeLocation(c.Session.IsOnline, c.Location)
	if err != nil {
		return nil, err
	}
	c.Session.Location = loc
	return c.Session, nil
}

// Create implements SessionRepository
func (r *CachedSessionRepository) Create(ctx context.Context, s *domain.Session, event *domain.OutboxMessage) error {
	if err := r.next.Create(ctx, s, event); err != nil {
		return err
	}
	r.bumpListGeneration(ctx)
	return nil
}

// GetByID implements SessionRepository
func (r *CachedSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	key := sessionKeyPrefix + id

	var entry cachedSession
	err := r.cache.GetJSON(ctx, key, &entry)
	if err == nil {
		if s, derr := entry.toDomain(); derr == nil {
			return s, nil
		}
	} else if !errors.Is(err, pkgredis.ErrCacheMiss) {
		r.log.Warn("session cache read failed", zap.String("key", key), zap.Error(err))
	}

	s, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, s)
	return s, nil
}

// List implements SessionRepository
func (r *CachedSessionRepository) List(ctx context.Context, filter *SessionFilter) ([]*domain.Session, int64, error) {
	if filter == nil {
		filter = &SessionFilter{}
	}
	filter.Normalize()

	gen, err := r.cache.GetInt64(ctx, listGenerationKey)
	if err != nil {
		r.log.Warn("session list generation read failed", zap.Error(err))
		return r.next.List(ctx, filter)
	}
	key := listKeyPrefix + strconv.FormatInt(gen, 10) + ":" + filter.CacheKey()

	var page cachedPage
	if err := r.cache.GetJSON(ctx, key, &page); err == nil {
		if sessions, ok := decodePage(page); ok {
			return sessions, page.Total, nil
		}
	} else if !errors.Is(err, pkgredis.ErrCacheMiss) {
		r.log.Warn("session list cache read failed", zap.String("key", key), zap.Error(err))
	}

	sessions, total, err := r.next.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	page = cachedPage{Items: make([]cachedSession, 0, len(sessions)), Total: total}
	for _, s := range sessions {
		entry, err := toCached(s)
		if err != nil {
			return sessions, total, nil
		}
		page.Items = append(page.Items, entry)
	}
	if err := r.cache.SetJSON(ctx, key, page, r.listTTL); err != nil {
		r.log.Warn("session list cache write failed", zap.String("key", key), zap.Error(err))
	}
	return sessions, total, nil
}

func decodePage(page cachedPage) ([]*domain.Session, bool) {
	sessions := make([]*domain.Session, 0, len(page.Items))
	for _, item := range page.Items {
		s, err := item.toDomain()
		if err != nil {
			return nil, false
		}
		sessions = append(sessions, s)
	}
	return sessions, true
}

// Update implements SessionRepository
func (r *CachedSessionRepository) Update(ctx context.Context, s *domain.Session, event *domain.OutboxMessage) error {
	if err := r.next.Update(ctx, s, event); err != nil {
		return err
	}
	_ = r.InvalidateSession(ctx, s.ID)
	return nil
}

// SoftDelete implements SessionRepository
func (r *CachedSessionRepository) SoftDelete(ctx context.Context, id string, at time.Time, event *domain.OutboxMessage) error {
	if err := r.next.SoftDelete(ctx, id, at, event); err != nil {
		return err
	}
	_ = r.InvalidateSession(ctx, id)
	return nil
}

// ListByParticipant is user specific and always read from the store
func (r *CachedSessionRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.UserParticipation, error) {
	return r.next.ListByParticipant(ctx, userID)
}

// InvalidateSession drops the cached session and every cached list page
func (r *CachedSessionRepository) InvalidateSession(ctx context.Context, id string) error {
	key := sessionKeyPrefix + id
	err := r.cache.Del(ctx, key).Err()
	if err != nil {
		r.log.Warn("session cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	r.bumpListGeneration(ctx)
	return err
}

func (r *CachedSessionRepository) bumpListGeneration(ctx context.Context) {
	if err := r.cache.Incr(ctx, listGenerationKey).Err(); err != nil {
		r.log.Warn("session list generation bump failed", zap.Error(err))
	}
}

func (r *CachedSessionRepository) store(ctx context.Context, key string, s *domain.Session) {
	entry, err := toCached(s)
	if err != nil {
		return
	}
	if err := r.cache.SetJSON(ctx, key, entry, r.sessionTTL); err != nil {
		r.log.Warn("session cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// NoopSessionCache is used when Redis is disabled
type NoopSessionCache struct{}

// InvalidateSession implements SessionCache
func (NoopSessionCache) InvalidateSession(context.Context, string) error { return nil }

var (
	_ SessionRepository = (*CachedSessionRepository)(nil)
	_ SessionCache      = (*CachedSessionRepository)(nil)
	_ SessionCache      = NoopSessionCache{}
	_ CacheStore        = (*pkgredis.Client)(nil)
)
