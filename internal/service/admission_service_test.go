package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAdmissionService() (AdmissionService, *MockAdmissionRepository, *MockSessionCache) {
	repo := new(MockAdmissionRepository)
	cache := new(MockSessionCache)
	return NewAdmissionService(repo, cache), repo, cache
}

func TestAdmissionService_Join(t *testing.T) {
	ctx := context.Background()
	svc, repo, cache := newTestAdmissionService()

	repo.On("Join", mock.Anything, testSessionID, "alice").Return(&domain.AdmissionResult{
		SessionID:   testSessionID,
		UserID:      "alice",
		Status:      domain.AdmissionSeated,
		Position:    1,
		ActiveCount: 1,
	}, nil)
	cache.On("InvalidateSession", mock.Anything, testSessionID).Return(nil)

	result, err := svc.Join(ctx, testSessionID, "alice")

	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionSeated, result.Status)
	assert.Equal(t, 1, result.Position)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestAdmissionService_Join_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		repoErr error
	}{
		{"full", domain.ErrSessionFull},
		{"already joined", domain.ErrAlreadyJoined},
		{"already waiting", domain.ErrAlreadyWaiting},
		{"not found", domain.ErrSessionNotFound},
		{"store", domain.NewStoreError("join", errors.New("connection reset"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, cache := newTestAdmissionService()
			repo.On("Join", mock.Anything, testSessionID, "bob").Return(nil, tt.repoErr)

			_, err := svc.Join(ctx, testSessionID, "bob")

			assert.ErrorIs(t, err, tt.repoErr)
			cache.AssertNotCalled(t, "InvalidateSession", mock.Anything, mock.Anything)
		})
	}
}

func TestAdmissionService_RejectsBadIDs(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestAdmissionService()

	_, err := svc.Join(ctx, "nope", "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = svc.JoinWaitingList(ctx, testSessionID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)

	_, err = svc.Leave(ctx, testSessionID, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)

	_, err = svc.GetRoster(ctx, "")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.Empty(t, repo.Calls)
}

func TestAdmissionService_JoinWaitingList(t *testing.T) {
	ctx := context.Background()
	svc, repo, cache := newTestAdmissionService()

	repo.On("JoinWaitingList", mock.Anything, testSessionID, "carol").Return(&domain.AdmissionResult{
		SessionID:    testSessionID,
		UserID:       "carol",
		Status:       domain.AdmissionQueued,
		Position:     3,
		ActiveCount:  2,
		WaitingCount: 1,
	}, nil)
	cache.On("InvalidateSession", mock.Anything, testSessionID).Return(nil)

	result, err := svc.JoinWaitingList(ctx, testSessionID, "carol")

	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionQueued, result.Status)
	assert.Equal(t, 1, result.WaitingCount)
}

func TestAdmissionService_Leave(t *testing.T) {
	ctx := context.Background()
	svc, repo, cache := newTestAdmissionService()

	repo.On("Leave", mock.Anything, testSessionID, "alice").Return(&domain.LeaveResult{
		SessionID:   testSessionID,
		UserID:      "alice",
		Status:      domain.ParticipantStatusActive,
		Position:    1,
		CancelledAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}, nil)
	repo.On("Leave", mock.Anything, testSessionID, "dave").Return(nil, domain.ErrNotAParticipant)
	cache.On("InvalidateSession", mock.Anything, testSessionID).Return(nil)

	result, err := svc.Leave(ctx, testSessionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusActive, result.Status)

	_, err = svc.Leave(ctx, testSessionID, "dave")
	assert.ErrorIs(t, err, domain.ErrNotAParticipant)

	cache.AssertNumberOfCalls(t, "InvalidateSession", 1)
}

func TestAdmissionService_CacheFailureDoesNotFailJoin(t *testing.T) {
	ctx := context.Background()
	svc, repo, cache := newTestAdmissionService()

	repo.On("Join", mock.Anything, testSessionID, "alice").Return(&domain.AdmissionResult{
		Status: domain.AdmissionSeated, Position: 1, ActiveCount: 1,
	}, nil)
	cache.On("InvalidateSession", mock.Anything, testSessionID).Return(errors.New("redis down"))

	_, err := svc.Join(ctx, testSessionID, "alice")
	assert.NoError(t, err)
}

func TestAdmissionService_GetRoster(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestAdmissionService()

	roster := domain.NewRoster(testSessionID, 2, 0, nil)
	repo.On("GetRoster", mock.Anything, testSessionID).Return(roster, nil)

	got, err := svc.GetRoster(ctx, testSessionID)
	require.NoError(t, err)
	assert.Same(t, roster, got)
}

func TestNewAdmissionService_NilCache(t *testing.T) {
	repo := new(MockAdmissionRepository)
	svc := NewAdmissionService(repo, nil)

	repo.On("Leave", mock.Anything, testSessionID, "alice").Return(&domain.LeaveResult{
		Status: domain.ParticipantStatusWaiting,
	}, nil)

	_, err := svc.Leave(context.Background(), testSessionID, "alice")
	assert.NoError(t, err)
}
