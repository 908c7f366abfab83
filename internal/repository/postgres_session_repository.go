package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	pool   *pgxpool.Pool
	outbox *PostgresOutboxRepository
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{
		pool:   pool,
		outbox: NewPostgresOutboxRepository(pool),
	}
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// Create inserts a session and its creation event
func (r *PostgresSessionRepository) Create(ctx context.Context, s *domain.Session, event *domain.OutboxMessage) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.create")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", s.ID), attribute.String("gm_user_id", s.GMUserID))

	params, err := encodeSession(s)
	if err != nil {
		return domain.NewStoreError("create session", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.NewStoreError("create session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO sessions (
			id, title, description, image_url, game_system_id, state,
			session_type, planned_sessions, session_date, start_time, end_time,
			duration_minutes, timezone, time_suggestions, decision_date,
			max_players, gm_user_id, is_online, location, city_key,
			character_creation, last_position, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, 0, $22, $23
		)
	`
	_, err = tx.Exec(ctx, query,
		s.ID, s.Title, s.Description, s.ImageURL, s.GameSystemID, s.State.String(),
		s.Type.String(), s.PlannedSessions, nullable(s.Date), nullable(s.StartTime), nullable(s.EndTime),
		s.DurationMinutes, s.Timezone, params.suggestions, nullable(s.DecisionDate),
		s.MaxPlayers, s.GMUserID, s.IsOnline, params.location, params.cityKey,
		s.CharacterCreation.String(), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return domain.NewStoreError("create session", fmt.Errorf("failed to insert session: %w", err))
	}

	if err = r.outbox.CreateTx(ctx, tx, event); err != nil {
		return domain.NewStoreError("create session", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.NewStoreError("create session", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// GetByID retrieves a live session with its roster counts
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id string) (s *domain.Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.get_by_id")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id))

	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.id = $1 AND s.deleted_at IS NULL`
	s, err = scanPostgresSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.NewStoreError("get session", err)
	}
	return s, nil
}

// List returns one page of live sessions matching filter, ordered by date
// then start time, plus the total number of matches
func (r *PostgresSessionRepository) List(ctx context.Context, filter *SessionFilter) (sessions []*domain.Session, total int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.list")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	if filter == nil {
		filter = &SessionFilter{}
	}
	filter.Normalize()
	span.SetAttributes(
		attribute.String("game_system_id", filter.GameSystemID),
		attribute.String("city", filter.City),
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
	)

	where, args := listQuery(filter, pgPlaceholder)

	if err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions s`+where, args...).Scan(&total); err != nil {
		return nil, 0, domain.NewStoreError("list sessions", fmt.Errorf("failed to count sessions: %w", err))
	}

	n := len(args)
	query := `SELECT ` + sessionColumns + ` FROM sessions s` + where + sessionOrder +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, domain.NewStoreError("list sessions", fmt.Errorf("failed to query sessions: %w", err))
	}
	defer rows.Close()

	sessions = make([]*domain.Session, 0, filter.Limit)
	for rows.Next() {
		s, err := scanPostgresSession(rows)
		if err != nil {
			return nil, 0, domain.NewStoreError("list sessions", err)
		}
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, domain.NewStoreError("list sessions", fmt.Errorf("error iterating sessions: %w", err))
	}

	span.SetAttributes(attribute.Int64("total", total))
	return sessions, total, nil
}

// Update rewrites the editable fields of a session. The row is locked so
// the capacity check cannot race with a concurrent join.
func (r *PostgresSessionRepository) Update(ctx context.Context, s *domain.Session, event *domain.OutboxMessage) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.update")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", s.ID))

	params, err := encodeSession(s)
	if err != nil {
		return domain.NewStoreError("update session", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	var lastPosition int
	err = tx.QueryRow(ctx,
		`SELECT last_position FROM sessions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, s.ID,
	).Scan(&lastPosition)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to lock session: %w", err))
	}

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_participants
		 WHERE session_id = $1 AND cancelled_at IS NULL AND status = 'active'`, s.ID,
	).Scan(&active)
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to count participants: %w", err))
	}
	if s.MaxPlayers < active {
		return domain.ErrCapacityBelowRoster
	}

	query := `
		UPDATE sessions SET
			title = $2, description = $3, image_url = $4, game_system_id = $5, state = $6,
			session_type = $7, planned_sessions = $8, session_date = $9, start_time = $10,
			end_time = $11, duration_minutes = $12, timezone = $13, time_suggestions = $14,
			decision_date = $15, max_players = $16, is_online = $17, location = $18,
			city_key = $19, character_creation = $20, updated_at = $21
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, query,
		s.ID, s.Title, s.Description, s.ImageURL, s.GameSystemID, s.State.String(),
		s.Type.String(), s.PlannedSessions, nullable(s.Date), nullable(s.StartTime),
		nullable(s.EndTime), s.DurationMinutes, s.Timezone, params.suggestions,
		nullable(s.DecisionDate), s.MaxPlayers, s.IsOnline, params.location,
		params.cityKey, s.CharacterCreation.String(), s.UpdatedAt,
	)
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to update session: %w", err))
	}

	if err = r.outbox.CreateTx(ctx, tx, event); err != nil {
		return domain.NewStoreError("update session", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.LastPosition = lastPosition
	s.ActiveCount = active
	return nil
}

// SoftDelete marks a session as deleted
func (r *PostgresSessionRepository) SoftDelete(ctx context.Context, id string, at time.Time, event *domain.OutboxMessage) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.soft_delete")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.NewStoreError("delete session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE sessions SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at,
	)
	if err != nil {
		return domain.NewStoreError("delete session", fmt.Errorf("failed to delete session: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}

	if err = r.outbox.CreateTx(ctx, tx, event); err != nil {
		return domain.NewStoreError("delete session", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.NewStoreError("delete session", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// ListByParticipant returns the live sessions userID is seated in or
// waiting for
func (r *PostgresSessionRepository) ListByParticipant(ctx context.Context, userID string) (out []*domain.UserParticipation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.list_by_participant")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + sessionColumns + `, sp.status, sp.queue_nr, sp.joined_at
		FROM session_participants sp
		JOIN sessions s ON s.id = sp.session_id
		WHERE sp.user_id = $1 AND sp.cancelled_at IS NULL AND s.deleted_at IS NULL` + sessionOrder

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, domain.NewStoreError("list participations", fmt.Errorf("failed to query participations: %w", err))
	}
	defer rows.Close()

	out = []*domain.UserParticipation{}
	for rows.Next() {
		var (
			rec    sessionRecord
			status string
			up     domain.UserParticipation
		)
		dest := append(postgresSessionDest(&rec), &status, &up.Position, &up.JoinedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, domain.NewStoreError("list participations", fmt.Errorf("failed to scan participation: %w", err))
		}
		s, err := rec.toDomain()
		if err != nil {
			return nil, domain.NewStoreError("list participations", err)
		}
		up.Session = s
		up.Status = domain.ParticipantStatus(status)
		out = append(out, &up)
	}
	if err = rows.Err(); err != nil {
		return nil, domain.NewStoreError("list participations", fmt.Errorf("error iterating participations: %w", err))
	}
	return out, nil
}

// postgresSessionDest lists scan targets in sessionColumns order
func postgresSessionDest(rec *sessionRecord) []interface{} {
	s := &rec.session
	return []interface{}{
		&s.ID, &s.Title, &s.Description, &s.ImageURL, &s.GameSystemID, &rec.state,
		&rec.sessionType, &s.PlannedSessions, &rec.date, &rec.startTime, &rec.endTime,
		&s.DurationMinutes, &s.Timezone, &rec.suggestions, &rec.decisionDate,
		&s.MaxPlayers, &s.GMUserID, &s.IsOnline, &rec.location, &rec.charCreation,
		&s.LastPosition, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt,
		&s.ActiveCount, &s.WaitingCount,
	}
}

func scanPostgresSession(row pgx.Row) (*domain.Session, error) {
	var rec sessionRecord
	if err := row.Scan(postgresSessionDest(&rec)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return rec.toDomain()
}

var _ SessionRepository = (*PostgresSessionRepository)(nil)
