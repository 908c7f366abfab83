package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// SQLiteSessionRepository implements SessionRepository on the embedded
// store used for single-node deployments and tests
type SQLiteSessionRepository struct {
	db     *sql.DB
	outbox *SQLiteOutboxRepository
}

// NewSQLiteSessionRepository creates a new SQLiteSessionRepository
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db, outbox: NewSQLiteOutboxRepository(db)}
}

func sqlitePlaceholder(int) string {
	return "?"
}

// Create inserts a session and its creation event
func (r *SQLiteSessionRepository) Create(ctx context.Context, s *domain.Session, event *domain.OutboxMessage) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.session.create")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", s.ID), attribute.String("gm_user_id", s.GMUserID))

	params, err := encodeSession(s)
	if err != nil {
		return domain.NewStoreError("create session", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStoreError("create session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, title, description, image_url, game_system_id, state,
			session_type, planned_sessions, session_date, start_time, end_time,
			duration_minutes, timezone, time_suggestions, decision_date,
			max_players, gm_user_id, is_online, location, city_key,
			character_creation, last_position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		s.ID, s.Title, s.Description, s.ImageURL, s.GameSystemID, s.State.String(),
		s.Type.String(), s.PlannedSessions, nullable(s.Date), nullable(s.StartTime), nullable(s.EndTime),
		s.DurationMinutes, s.Timezone, string(params.suggestions), nullable(s.DecisionDate),
		s.MaxPlayers, s.GMUserID, s.IsOnline, string(params.location), params.cityKey,
		s.CharacterCreation.String(), toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	if err != nil {
		return domain.NewStoreError("create session", fmt.Errorf("failed to insert session: %w", err))
	}

	if err = r.outbox.CreateTx(ctx, tx, event); err != nil {
		return domain.NewStoreError("create session", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.NewStoreError("create session", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// GetByID retrieves a live session with its roster counts
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (s *domain.Session, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.session.get_by_id")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id))

	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ? AND s.deleted_at IS NULL`, id)
	s, err = scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, domain.NewStoreError("get session", err)
	}
	return s, nil
}

// List returns one page of live sessions matching filter plus the total
// number of matches
func (r *SQLiteSessionRepository) List(ctx context.Context, filter *SessionFilter) (sessions []*domain.Session, total int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.session.list")
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

	where, args := listQuery(filter, sqlitePlaceholder)

	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions s`+where, args...).Scan(&total); err != nil {
		return nil, 0, domain.NewStoreError("list sessions", fmt.Errorf("failed to count sessions: %w", err))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions s` + where + sessionOrder + ` LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, domain.NewStoreError("list sessions", fmt.Errorf("failed to query sessions: %w", err))
	}
	defer rows.Close()

	sessions = make([]*domain.Session, 0, filter.Limit)
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, 0, domain.NewStoreError("list sessions", err)
		}
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, domain.NewStoreError("list sessions", fmt.Errorf("error iterating sessions: %w", err))
	}
	return sessions, total, nil
}

// Update rewrites the editable fields of a session. The immediate
// transaction holds the write lock, so the capacity check cannot race with
// a concurrent join.
func (r *SQLiteSessionRepository) Update(ctx context.Context, s *domain.Session, event *domain.OutboxMessage) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.session.update")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", s.ID))

	params, err := encodeSession(s)
	if err != nil {
		return domain.NewStoreError("update session", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var lastPosition int
	err = tx.QueryRowContext(ctx,
		`SELECT last_position FROM sessions WHERE id = ? AND deleted_at IS NULL`, s.ID,
	).Scan(&lastPosition)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to load session: %w", err))
	}

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM session_participants
		WHERE session_id = ? AND cancelled_at IS NULL AND status = 'active'`, s.ID,
	).Scan(&active)
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to count participants: %w", err))
	}
	if s.MaxPlayers < active {
		return domain.ErrCapacityBelowRoster
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			title = ?, description = ?, image_url = ?, game_system_id = ?, state = ?,
			session_type = ?, planned_sessions = ?, session_date = ?, start_time = ?,
			end_time = ?, duration_minutes = ?, timezone = ?, time_suggestions = ?,
			decision_date = ?, max_players = ?, is_online = ?, location = ?,
			city_key = ?, character_creation = ?, updated_at = ?
		WHERE id = ?`,
		s.Title, s.Description, s.ImageURL, s.GameSystemID, s.State.String(),
		s.Type.String(), s.PlannedSessions, nullable(s.Date), nullable(s.StartTime),
		nullable(s.EndTime), s.DurationMinutes, s.Timezone, string(params.suggestions),
		nullable(s.DecisionDate), s.MaxPlayers, s.IsOnline, string(params.location),
		params.cityKey, s.CharacterCreation.String(), toMillis(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to update session: %w", err))
	}

	if err = r.outbox.CreateTx(ctx, tx, event); err != nil {
		return domain.NewStoreError("update session", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.NewStoreError("update session", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.LastPosition = lastPosition
	s.ActiveCount = active
	return nil
}

// SoftDelete marks a session as deleted
func (r *SQLiteSessionRepository) SoftDelete(ctx context.Context, id string, at time.Time, event *domain.OutboxMessage) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.session.soft_delete")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("session_id", id))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStoreError("delete session", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	ms := toMillis(at)
	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, ms, ms, id)
	if err != nil {
		return domain.NewStoreError("delete session", fmt.Errorf("failed to delete session: %w", err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}

	if err = r.outbox.CreateTx(ctx, tx, event); err != nil {
		return domain.NewStoreError("delete session", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.NewStoreError("delete session", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// ListByParticipant returns the live sessions userID is seated in or
// waiting for
func (r *SQLiteSessionRepository) ListByParticipant(ctx context.Context, userID string) (out []*domain.UserParticipation, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.sqlite.session.list_by_participant")
	defer span.End()
	defer func() { finishSpan(span, err) }()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + sessionColumns + `, sp.status, sp.queue_nr, sp.joined_at
		FROM session_participants sp
		JOIN sessions s ON s.id = sp.session_id
		WHERE sp.user_id = ? AND sp.cancelled_at IS NULL AND s.deleted_at IS NULL` + sessionOrder

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, domain.NewStoreError("list participations", fmt.Errorf("failed to query participations: %w", err))
	}
	defer rows.Close()

	out = []*domain.UserParticipation{}
	for rows.Next() {
		var (
			rec      sqliteSessionRecord
			status   string
			joinedAt int64
			up       domain.UserParticipation
		)
		dest := append(rec.dest(), &status, &up.Position, &joinedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, domain.NewStoreError("list participations", fmt.Errorf("failed to scan participation: %w", err))
		}
		s, err := rec.toDomain()
		if err != nil {
			return nil, domain.NewStoreError("list participations", err)
		}
		up.Session = s
		up.Status = domain.ParticipantStatus(status)
		up.JoinedAt = fromMillis(joinedAt)
		out = append(out, &up)
	}
	if err = rows.Err(); err != nil {
		return nil, domain.NewStoreError("list participations", fmt.Errorf("error iterating participations: %w", err))
	}
	return out, nil
}

// sqliteSessionRecord adds the integer timestamp columns
type sqliteSessionRecord struct {
	sessionRecord
	createdAt int64
	updatedAt int64
	deletedAt *int64
}

func (rec *sqliteSessionRecord) dest() []interface{} {
	s := &rec.session
	return []interface{}{
		&s.ID, &s.Title, &s.Description, &s.ImageURL, &s.GameSystemID, &rec.state,
		&rec.sessionType, &s.PlannedSessions, &rec.date, &rec.startTime, &rec.endTime,
		&s.DurationMinutes, &s.Timezone, &rec.suggestions, &rec.decisionDate,
		&s.MaxPlayers, &s.GMUserID, &s.IsOnline, &rec.location, &rec.charCreation,
		&s.LastPosition, &rec.createdAt, &rec.updatedAt, &rec.deletedAt,
		&s.ActiveCount, &s.WaitingCount,
	}
}

func (rec *sqliteSessionRecord) toDomain() (*domain.Session, error) {
	rec.session.CreatedAt = fromMillis(rec.createdAt)
	rec.session.UpdatedAt = fromMillis(rec.updatedAt)
	rec.session.DeletedAt = fromNullMillis(rec.deletedAt)
	return rec.sessionRecord.toDomain()
}

type sqlScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteSession(row sqlScanner) (*domain.Session, error) {
	var rec sqliteSessionRecord
	if err := row.Scan(rec.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return rec.toDomain()
}

var _ SessionRepository = (*SQLiteSessionRepository)(nil)
