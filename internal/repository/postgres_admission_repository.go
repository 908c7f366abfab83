package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const pgUniqueViolation = "23505"

// PostgresAdmissionRepository implements AdmissionRepository using
// PostgreSQL. Every operation locks the session row with SELECT ... FOR
// UPDATE, so admissions on one session run one at a time while different
// sessions proceed in parallel.
type PostgresAdmissionRepository struct {
	pool   *pgxpool.Pool
	outbox *PostgresOutboxRepository
	topic  string
	now    func() time.Time
}

// NewPostgresAdmissionRepository creates a new PostgresAdmissionRepository.
// Participation events are written to topic.
func NewPostgresAdmissionRepository(pool *pgxpool.Pool, topic string) *PostgresAdmissionRepository {
	return &PostgresAdmissionRepository{
		pool:   pool,
		outbox: NewPostgresOutboxRepository(pool),
		topic:  topic,
		now:    time.Now,
	}
}

// Join seats userID if a seat is free
func (r *PostgresAdmissionRepository) Join(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	roster, p, err := r.mutate(ctx, opJoin, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return roster.AdmissionResultFor(p), nil
}

// JoinWaitingList appends userID to the waiting list
func (r *PostgresAdmissionRepository) JoinWaitingList(ctx context.Context, sessionID, userID string) (*domain.AdmissionResult, error) {
	roster, p, err := r.mutate(ctx, opJoinWaitingList, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return roster.AdmissionResultFor(p), nil
}

// Leave cancels userID's live record
func (r *PostgresAdmissionRepository) Leave(ctx context.Context, sessionID, userID string) (*domain.LeaveResult, error) {
	roster, p, err := r.mutate(ctx, opLeave, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return roster.LeaveResultFor(p), nil
}

func (r *PostgresAdmissionRepository) mutate(ctx context.Context, op admissionOp, sessionID, userID string) (roster *domain.Roster, p *domain.Participant, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.admission."+op.String())
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, domain.NewStoreError(op.String(), fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	roster, p, err = runAdmission(ctx, &pgAdmissionTx{tx: tx, outbox: r.outbox}, op, sessionID, userID, r.topic, r.now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, nil, domain.ErrAlreadyJoined
		}
		return nil, nil, domain.NewStoreError(op.String(), err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, domain.NewStoreError(op.String(), fmt.Errorf("failed to commit transaction: %w", err))
	}

	span.SetAttributes(
		attribute.Int("position", p.Position),
		attribute.Int("active_count", roster.ActiveCount()),
		attribute.Int("waiting_count", roster.WaitingCount()),
	)
	return roster, p, nil
}

// GetRoster reads the current live roster without locking
func (r *PostgresAdmissionRepository) GetRoster(ctx context.Context, sessionID string) (roster *domain.Roster, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.admission.get_roster")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", sessionID))

	var maxPlayers, lastPosition int
	err = r.pool.QueryRow(ctx,
		`SELECT max_players, last_position FROM sessions WHERE id = $1 AND deleted_at IS NULL`, sessionID,
	).Scan(&maxPlayers, &lastPosition)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.NewStoreError("get roster", fmt.Errorf("failed to get session: %w", err))
	}

	records, err := queryPostgresParticipants(ctx, r.pool, sessionID)
	if err != nil {
		return nil, domain.NewStoreError("get roster", err)
	}
	return domain.NewRoster(sessionID, maxPlayers, lastPosition, records), nil
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func queryPostgresParticipants(ctx context.Context, q pgQuerier, sessionID string) ([]*domain.Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, user_id, status, queue_nr, joined_at
		FROM session_participants
		WHERE session_id = $1 AND cancelled_at IS NULL
		ORDER BY queue_nr ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var records []*domain.Participant
	for rows.Next() {
		p := &domain.Participant{}
		var status string
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &status, &p.Position, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Status = domain.ParticipantStatus(status)
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return records, nil
}

type pgAdmissionTx struct {
	tx     pgx.Tx
	outbox *PostgresOutboxRepository
}

func (t *pgAdmissionTx) lockSession(ctx context.Context, sessionID string) (int, int, error) {
	var maxPlayers, lastPosition int
	err := t.tx.QueryRow(ctx,
		`SELECT max_players, last_position FROM sessions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, sessionID,
	).Scan(&maxPlayers, &lastPosition)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, domain.ErrSessionNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock session: %w", err)
	}
	return maxPlayers, lastPosition, nil
}

func (t *pgAdmissionTx) liveParticipants(ctx context.Context, sessionID string) ([]*domain.Participant, error) {
	return queryPostgresParticipants(ctx, t.tx, sessionID)
}

func (t *pgAdmissionTx) insertParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO session_participants (id, session_id, user_id, status, queue_nr, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.SessionID, p.UserID, p.Status.String(), p.Position, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (t *pgAdmissionTx) cancelParticipant(ctx context.Context, p *domain.Participant) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE session_participants SET cancelled_at = $2 WHERE id = $1 AND cancelled_at IS NULL`,
		p.ID, p.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel participant: %w", err)
	}
	return nil
}

func (t *pgAdmissionTx) setLastPosition(ctx context.Context, sessionID string, position int) error {
	_, err := t.tx.Exec(ctx, `UPDATE sessions SET last_position = $2 WHERE id = $1`, sessionID, position)
	if err != nil {
		return fmt.Errorf("failed to update last position: %w", err)
	}
	return nil
}

func (t *pgAdmissionTx) insertOutbox(ctx context.Context, msg *domain.OutboxMessage) error {
	return t.outbox.CreateTx(ctx, t.tx, msg)
}

var _ AdmissionRepository = (*PostgresAdmissionRepository)(nil)
