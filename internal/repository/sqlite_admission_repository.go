package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// SQLiteAdmissionRepository implements AdmissionRepository on the embedded
// store. The handle owns a single connection and every transaction begins
// IMMEDIATE, so admissions are serialized across all sessions.
type SQLiteAdmissionRepository struct {
	db     *sql.DB
	outbox *SQLiteOutboxRepository
	topic  string
	now    func() time.Time
}

// NewSQLiteAdmissionRepository creates a new SQLiteAdmissionRepository.
// Participation events are written to topic.
func NewSQLiteAdmissionRepository(db *sql.DB, topic string) *SQLiteAdmissionRepository {
	return &SQLiteAdmissionRepository{
		db:     db,
		outbox: NewSQLiteOutboxRepository(db),
		topic:  topic,
		now:    time.Now,
	}
}

// Join seats userID if a seat is free
func (r *SQLiteAdmissionRepository) Join(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	roster, p, err := r.mutate(ctx, opJoin, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return roster.AdmissionResultFor(p), nil
}

// JoinWaitingList appends userID to the waiting list
func (r *SQLiteAdmissionRepository) JoinWaitingList(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	roster, p, err := r.mutate(ctx, opJoinWaitingList, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return roster.AdmissionResultFor(p), nil
}

// Leave cancels userID's live record
func (r *SQLiteAdmissionRepository) Leave(ctx context.Context, sessionID, userID string) (*domain.LeaveResult, error) {
	roster, p, err := r.mutate(ctx, opLeave, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return roster.LeaveResultFor(p), nil
}

func (r *SQLiteAdmissionRepository) mutate(ctx context.Context, op admissionOp, sessionID, userID string) (roster *domain.Roster, p *domain.Participant, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.admission."+op.String())
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, domain.NewStoreError(op.String(), fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	roster, p, err = runAdmission(ctx, &sqliteAdmissionTx{tx: tx, outbox: r.outbox}, op, sessionID, userID, r.topic, r.now().UTC())
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, nil, domain.ErrAlreadyJoined
		}
		return nil, nil, domain.NewStoreError(op.String(), err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, domain.NewStoreError(op.String(), fmt.Errorf("failed to commit transaction: %w", err))
	}
	return roster, p, nil
}

// GetRoster reads the current live roster
func (r *SQLiteAdmissionRepository) GetRoster(ctx context.Context, sessionID string) (roster *domain.Roster, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.admission.get_roster")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", sessionID))

	var maxPlayers, lastPosition int
	err = r.db.QueryRowContext(ctx,
		`SELECT max_players, last_position FROM sessions WHERE id = ? AND deleted_at IS NULL`, sessionID,
	).Scan(&maxPlayers, &lastPosition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.NewStoreError("get roster", fmt.Errorf("failed to get session: %w", err))
	}

	records, err := querySQLiteParticipants(ctx, r.db, sessionID)
	if err != nil {
		return nil, domain.NewStoreError("get roster", err)
	}
	return domain.NewRoster(sessionID, maxPlayers, lastPosition, records), nil
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func querySQLiteParticipants(ctx context.Context, q sqlQuerier, sessionID string) ([]*domain.Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, session_id, user_id, status, queue_nr, joined_at
		FROM session_participants
		WHERE session_id = ? AND cancelled_at IS NULL
		ORDER BY queue_nr ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var records []*domain.Participant
	for rows.Next() {
		p := &domain.Participant{}
		var (
			status   string
			joinedAt int64
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &status, &p.Position, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Status = domain.ParticipantStatus(status)
		p.JoinedAt = fromMillis(joinedAt)
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return records, nil
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type sqliteAdmissionTx struct {
	tx     *sql.Tx
	outbox *SQLiteOutboxRepository
}

// lockSession reads the session row. The write lock is already held since
// the transaction began IMMEDIATE.
func (t *sqliteAdmissionTx) lockSession(ctx context.Context, sessionID string) (int, int, error) {
	var maxPlayers, lastPosition int
	err := t.tx.QueryRowContext(ctx,
		`SELECT max_players, last_position FROM sessions WHERE id = ? AND deleted_at IS NULL`, sessionID,
	).Scan(&maxPlayers, &lastPosition)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, domain.ErrSessionNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load session: %w", err)
	}
	return maxPlayers, lastPosition, nil
}

func (t *sqliteAdmissionTx) liveParticipants(ctx context.Context, sessionID string) ([]*domain.Participant, error) {
	return querySQLiteParticipants(ctx, t.tx, sessionID)
}

func (t *sqliteAdmissionTx) insertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO session_participants (id, session_id, user_id, status, queue_nr, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.UserID, p.Status.String(), p.Position, toMillis(p.JoinedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (t *sqliteAdmissionTx) cancelParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE session_participants SET cancelled_at = ? WHERE id = ? AND cancelled_at IS NULL`,
		toNullMillis(p.CancelledAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel participant: %w", err)
	}
	return nil
}

func (t *sqliteAdmissionTx) setLastPosition(ctx context.Context, sessionID string, position int) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE sessions SET last_position = ? WHERE id = ?`, position, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update last position: %w", err)
	}
	return nil
}

func (t *sqliteAdmissionTx) insertOutbox(ctx context.Context, msg *domain.OutboxMessage) error {
	return t.outbox.CreateTx(ctx, t.tx, msg)
}

var _ AdmissionRepository = (*SQLiteAdmissionRepository)(nil)
