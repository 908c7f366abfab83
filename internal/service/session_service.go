package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/internal/dto"
	"github.com/rcn123/rpg-lobby/internal/metrics"
	"github.com/rcn123/rpg-lobby/internal/repository"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionService defines the interface for session business logic
type SessionService interface {
	// Create validates and stores a new session owned by gmID
	Create(ctx context.Context, gmID string, req *dto.SessionRequest) (*dto.SessionResponse, error)

	// Get returns a session together with its roster
	Get(ctx context.Context, id string) (*dto.SessionDetailResponse, error)

	// Update replaces the editable fields. Only the game master may update.
	Update(ctx context.Context, id, userID string, req *dto.SessionRequest) (*dto.SessionResponse, error)

	// Delete soft deletes a session. Only the game master may delete.
	Delete(ctx context.Context, id, userID string) error

	// List returns one page of sessions matching the query
	List(ctx context.Context, q *dto.ListSessionsQuery) ([]*dto.SessionResponse, int64, error)

	// ListMine returns the sessions userID is seated in or waiting for
	ListMine(ctx context.Context, userID string) ([]*dto.ParticipationResponse, error)

	// Catalog returns the game systems and timezones a session may use
	Catalog(ctx context.Context) *dto.CatalogResponse
}

// SessionServiceConfig contains configuration for session service
type SessionServiceConfig struct {
	// EventTopic is the broker topic session events are written for
	EventTopic string
}

type sessionService struct {
	sessions  repository.SessionRepository
	admission repository.AdmissionRepository
	topic     string
	now       func() time.Time
}

// NewSessionService creates a new session service
func NewSessionService(
	sessions repository.SessionRepository,
	admission repository.AdmissionRepository,
	cfg *SessionServiceConfig,
) SessionService {
	topic := domain.DefaultEventTopic
	if cfg != nil && cfg.EventTopic != "" {
		topic = cfg.EventTopic
	}
	return &sessionService{
		sessions:  sessions,
		admission: admission,
		topic:     topic,
		now:       time.Now,
	}
}

// validSessionID reports whether id can name a stored session. Unparseable
// ids are reported as not found.
func validSessionID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	if domain.IsStoreError(err) {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, err.Error())
}

// Create validates and stores a new session owned by gmID
func (s *sessionService) Create(ctx context.Context, gmID string, req *dto.SessionRequest) (resp *dto.SessionResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.create")
	defer span.End()
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(gmID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req == nil {
		return nil, domain.ErrInvalidTitle
	}

	session, err := req.ToDomain()
	if err != nil {
		return nil, err
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session.ID = uuid.New().String()
	session.GMUserID = gmID
	session.CreatedAt = now
	session.UpdatedAt = now

	span.SetAttributes(
		attribute.String("session_id", session.ID),
		attribute.String("game_system", session.GameSystemID),
		attribute.Bool("is_online", session.IsOnline),
	)

	event, err := domain.SessionOutboxMessage(domain.SessionEventCreated, session, now, s.topic)
	if err != nil {
		return nil, domain.NewStoreError("create session", err)
	}
	if err := s.sessions.Create(ctx, session, event); err != nil {
		return nil, err
	}

	metrics.RecordSessionCreated(ctx, session.GameSystemID, session.IsOnline)
	return dto.FromSession(session), nil
}

// Get returns a session together with its roster
func (s *sessionService) Get(ctx context.Context, id string) (resp *dto.SessionDetailResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.get")
	defer span.End()
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id))

	if !validSessionID(id) {
		return nil, domain.ErrSessionNotFound
	}

	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := s.admission.GetRoster(ctx, id)
	if err != nil {
		return nil, err
	}

	// the roster is the fresher read
	session.ActiveCount = roster.ActiveCount()
	session.WaitingCount = roster.WaitingCount()

	return &dto.SessionDetailResponse{
		SessionResponse: dto.FromSession(session),
		Roster:          dto.FromRoster(roster),
	}, nil
}

// Update replaces the editable fields of a session
func (s *sessionService) Update(ctx context.Context, id, userID string, req *dto.SessionRequest) (resp *dto.SessionResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.update")
	defer span.End()
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id), attribute.String("user_id", userID))

	if !validSessionID(id) {
		return nil, domain.ErrSessionNotFound
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req == nil {
		return nil, domain.ErrInvalidTitle
	}

	existing, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.IsOwnedBy(userID) {
		return nil, domain.ErrNotSessionOwner
	}

	updated, err := req.ToDomain()
	if err != nil {
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if updated.MaxPlayers < existing.ActiveCount {
		return nil, domain.ErrCapacityBelowRoster
	}

	now := s.now().UTC()
	updated.ID = existing.ID
	updated.GMUserID = existing.GMUserID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = now
	updated.ActiveCount = existing.ActiveCount
	updated.WaitingCount = existing.WaitingCount

	event, err := domain.SessionOutboxMessage(domain.SessionEventUpdated, updated, now, s.topic)
	if err != nil {
		return nil, domain.NewStoreError("update session", err)
	}
	if err := s.sessions.Update(ctx, updated, event); err != nil {
		return nil, err
	}

	metrics.RecordSessionUpdated(ctx)
	return dto.FromSession(updated), nil
}

// Delete soft deletes a session
func (s *sessionService) Delete(ctx context.Context, id, userID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.delete")
	defer span.End()
	defer func() { endSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id), attribute.String("user_id", userID))

	if !validSessionID(id) {
		return domain.ErrSessionNotFound
	}

	existing, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !existing.IsOwnedBy(userID) {
		return domain.ErrNotSessionOwner
	}

	now := s.now().UTC()
	event, err := domain.SessionOutboxMessage(domain.SessionEventDeleted, existing, now, s.topic)
	if err != nil {
		return domain.NewStoreError("delete session", err)
	}
	if err := s.sessions.SoftDelete(ctx, id, now, event); err != nil {
		return err
	}

	metrics.RecordSessionDeleted(ctx)
	return nil
}

// List returns one page of sessions matching the query
func (s *sessionService) List(ctx context.Context, q *dto.ListSessionsQuery) (items []*dto.SessionResponse, total int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.list")
	defer span.End()
	defer func() { endSpan(span, err) }()

	if q == nil {
		q = &dto.ListSessionsQuery{}
	}
	q.Normalize()

	online, err := q.OnlineFilter()
	if err != nil {
		return nil, 0, domain.ErrInvalidFilter
	}
	state := domain.SessionState(q.State)
	if state != "" && !state.IsValid() {
		return nil, 0, domain.ErrInvalidFilter
	}

	filter := &repository.SessionFilter{
		GameSystemID: strings.TrimSpace(q.GameSystem),
		IsOnline:     online,
		City:         q.City,
		State:        state,
		GMUserID:     strings.TrimSpace(q.GMID),
		Limit:        q.PageSize,
		Offset:       (q.Page - 1) * q.PageSize,
	}
	span.SetAttributes(
		attribute.String("game_system", filter.GameSystemID),
		attribute.String("city", filter.City),
		attribute.Int("page", q.Page),
	)

	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return dto.FromSessions(sessions), total, nil
}

// ListMine returns the sessions userID is seated in or waiting for
func (s *sessionService) ListMine(ctx context.Context, userID string) (items []*dto.ParticipationResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.list_mine")
	defer span.End()
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidUserID
	}
	span.SetAttributes(attribute.String("user_id", userID))

	list, err := s.sessions.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.FromParticipations(list), nil
}

// Catalog returns the game systems and timezones a session may use
func (s *sessionService) Catalog(ctx context.Context) *dto.CatalogResponse {
	return &dto.CatalogResponse{
		GameSystems: domain.GameSystems(),
		Timezones:   domain.SupportedTimezones(),
	}
}
