package service

import (
	"context"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/internal/repository"
	"github.com/stretchr/testify/mock"
)

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.Session, event *domain.OutboxMessage) error {
	args := m.Called(ctx, session, event)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) List(ctx context.Context, filter *repository.SessionFilter) ([]*domain.Session, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Session), args.Get(1).(int64), args.Error(2)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.Session, event *domain.OutboxMessage) error {
	args := m.Called(ctx, session, event)
	return args.Error(0)
}

func (m *MockSessionRepository) SoftDelete(ctx context.Context, id string, at time.Time, event *domain.OutboxMessage) error {
	args := m.Called(ctx, id, at, event)
	return args.Error(0)
}

func (m *MockSessionRepository) ListByParticipant(ctx context.Context, userID string) ([]*domain.UserParticipation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.UserParticipation), args.Error(1)
}

// MockAdmissionRepository is a mock implementation of AdmissionRepository
type MockAdmissionRepository struct {
	mock.Mock
}

func (m *MockAdmissionRepository) Join(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdmissionResult), args.Error(1)
}

func (m *MockAdmissionRepository) JoinWaitingList(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AdmissionResult), args.Error(1)
}

func (m *MockAdmissionRepository) Leave(ctx context.Context, sessionID, userID string) (*domain.LeaveResult, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LeaveResult), args.Error(1)
}

func (m *MockAdmissionRepository) GetRoster(ctx context.Context, sessionID string) (*domain.Roster, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Roster), args.Error(1)
}

// MockSessionCache is a mock implementation of SessionCache
type MockSessionCache struct {
	mock.Mock
}

func (m *MockSessionCache) InvalidateSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var (
	_ repository.SessionRepository   = (*MockSessionRepository)(nil)
	_ repository.AdmissionRepository = (*MockAdmissionRepository)(nil)
	_ repository.SessionCache        = (*MockSessionCache)(nil)
)
