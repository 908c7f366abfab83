package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rcn123/rpg-lobby/internal/domain"
)

// admissionTx is the slice of a store transaction the admission rule needs.
// lockSession must serialize concurrent callers on the same session until
// the transaction ends.
type admissionTx interface {
	lockSession(ctx context.Context, sessionID string) (maxPlayers, lastPosition int, err error)
	liveParticipants(ctx context.Context, sessionID string) ([]*domain.Participant, error)
	insertParticipant(ctx context.Context, p *domain.Participant) error
	cancelParticipant(ctx context.Context, p *domain.Participant) error
	setLastPosition(ctx context.Context, sessionID string, position int) error
	insertOutbox(ctx context.Context, msg *domain.OutboxMessage) error
}

// runAdmission loads the roster, applies op and persists the outcome
// together with its event. The caller owns commit and rollback.
func runAdmission(ctx context.Context, tx admissionTx, op admissionOp, sessionID, userID, topic string, now time.Time) (*domain.Roster, *domain.Participant, error) {
	maxPlayers, lastPosition, err := tx.lockSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	records, err := tx.liveParticipants(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	roster := domain.NewRoster(sessionID, maxPlayers, lastPosition, records)
	p, eventType, err := applyAdmission(roster, op, userID, now)
	if err != nil {
		return nil, nil, err
	}

	if op == opLeave {
		if err := tx.cancelParticipant(ctx, p); err != nil {
			return nil, nil, err
		}
	} else {
		p.ID = uuid.New().String()
		if err := tx.insertParticipant(ctx, p); err != nil {
			return nil, nil, err
		}
		if err := tx.setLastPosition(ctx, sessionID, roster.LastPosition); err != nil {
			return nil, nil, err
		}
	}

	msg, err := domain.ParticipationOutboxMessage(eventType, roster, p, topic)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build participation event: %w", err)
	}
	if err := tx.insertOutbox(ctx, msg); err != nil {
		return nil, nil, err
	}
	return roster, p, nil
}
