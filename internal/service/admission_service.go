package service

import (
	"context"
	"strings"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/internal/metrics"
	"github.com/rcn123/rpg-lobby/internal/repository"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AdmissionService handles seating players and managing waiting lists.
// Each operation is atomic per session; concurrent calls for the same
// session are serialized by the repository.
type AdmissionService interface {
	// Join takes a free seat or fails with ErrSessionFull
	Join(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error)

	// JoinWaitingList appends the user to the waiting list
	JoinWaitingList(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error)

	// Leave cancels the user's live record. Nobody is promoted.
	Leave(ctx context.Context, sessionID, userID string) (*domain.LeaveResult, error)

	// GetRoster returns the seated players and the waiting list
	GetRoster(ctx context.Context, sessionID string) (*domain.Roster, error)
}

type admissionService struct {
	repo  repository.AdmissionRepository
	cache repository.SessionCache
	log   *logger.Logger
}

// NewAdmissionService creates a new admission service. cache may be nil.
func NewAdmissionService(repo repository.AdmissionRepository, cache repository.SessionCache) AdmissionService {
	if cache == nil {
		cache = repository.NoopSessionCache{}
	}
	return &admissionService{
		repo:  repo,
		cache: cache,
		log:   logger.Get().With(zap.String("component", "admission_service")),
	}
}

func (s *admissionService) checkIDs(sessionID, userID string) error {
	if !validSessionID(sessionID) {
		return domain.ErrSessionNotFound
	}
	if strings.TrimSpace(userID) == "" {
		return domain.ErrInvalidUserID
	}
	return nil
}

func admissionOutcome(err error) string {
	if domain.IsStoreError(err) {
		return metrics.OutcomeError
	}
	return metrics.OutcomeRejected
}

// invalidate drops cached reads of the session. A failure only leaves
// counts stale until the TTL expires.
func (s *admissionService) invalidate(ctx context.Context, sessionID string) {
	if err := s.cache.InvalidateSession(ctx, sessionID); err != nil {
		s.log.Warn("failed to invalidate session cache",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Join takes a free seat in the session
func (s *admissionService) Join(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	return s.admit(ctx, "join", sessionID, userID, s.repo.Join)
}

// JoinWaitingList appends the user to the session's waiting list
func (s *admissionService) JoinWaitingList(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	return s.admit(ctx, "join_waiting_list", sessionID, userID, s.repo.JoinWaitingList)
}

func (s *admissionService) admit(
	ctx context.Context,
	operation, sessionID, userID string,
	fn func(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error),
) (result *domain.AdmissionResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admission."+operation)
	defer span.End()
	defer func() { endSpan(span, err) }()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)

	if err := s.checkIDs(sessionID, userID); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err = fn(ctx, sessionID, userID)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordAdmission(ctx, operation, admissionOutcome(err), elapsed)
		return nil, err
	}

	outcome := metrics.OutcomeSeated
	if result.Status == domain.AdmissionQueued {
		outcome = metrics.OutcomeQueued
	}
	metrics.RecordAdmission(ctx, operation, outcome, elapsed)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("position", result.Position),
		attribute.Int("active_count", result.ActiveCount),
	)

	s.invalidate(ctx, sessionID)
	return result, nil
}

// Leave cancels the user's live record in the session
func (s *admissionService) Leave(ctx context.Context, sessionID, userID string) (result *domain.LeaveResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admission.leave")
	defer span.End()
	defer func() { endSpan(span, err) }()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)

	if err := s.checkIDs(sessionID, userID); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err = s.repo.Leave(ctx, sessionID, userID)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.RecordAdmission(ctx, "leave", admissionOutcome(err), elapsed)
		return nil, err
	}

	metrics.RecordAdmission(ctx, "leave", metrics.OutcomeLeft, elapsed)
	metrics.RecordLeave(ctx, result.Status == domain.ParticipantStatusActive)

	s.invalidate(ctx, sessionID)
	return result, nil
}

// GetRoster returns the live roster of a session
func (s *admissionService) GetRoster(ctx context.Context, sessionID string) (roster *domain.Roster, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admission.get_roster")
	defer span.End()
	defer func() { endSpan(span, err) }()

	if !validSessionID(sessionID) {
		return nil, domain.ErrSessionNotFound
	}
	return s.repo.GetRoster(ctx, sessionID)
}
