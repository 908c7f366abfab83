package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rcn123/rpg-lobby/internal/domain"
)

// SQLiteOutboxRepository implements OutboxRepository on the embedded store.
// Timestamps are stored as Unix milliseconds.
type SQLiteOutboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteOutboxRepository creates a new SQLiteOutboxRepository
func NewSQLiteOutboxRepository(db *sql.DB) *SQLiteOutboxRepository {
	return &SQLiteOutboxRepository{db: db, now: time.Now}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromNullMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

// CreateTx stores msg inside the caller's transaction
func (r *SQLiteOutboxRepository) CreateTx(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error {
	if msg == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (
			id, aggregate_type, aggregate_id, event_type,
			payload, topic, partition_key, status,
			retry_count, max_retries, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.Payload,
		msg.Topic,
		msg.PartitionKey,
		msg.Status.String(),
		msg.RetryCount,
		msg.MaxRetries,
		toMillis(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message in transaction: %w", err)
	}
	return nil
}

const selectOutboxColumnsSQLite = `
	SELECT
		id, aggregate_type, aggregate_id, event_type,
		payload, topic, partition_key, status,
		retry_count, max_retries, last_error,
		created_at, processed_at, published_at
	FROM outbox`

// GetPendingMessages gets pending messages in creation order
func (r *SQLiteOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, selectOutboxColumnsSQLite+`
		WHERE status = 'pending'
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending messages: %w", err)
	}
	defer rows.Close()

	return scanSQLiteOutboxMessages(rows)
}

// GetFailedMessages gets failed messages that can be retried
func (r *SQLiteOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, selectOutboxColumnsSQLite+`
		WHERE status = 'failed' AND retry_count < max_retries
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed messages: %w", err)
	}
	defer rows.Close()

	return scanSQLiteOutboxMessages(rows)
}

// MarkAsPublished marks a message as successfully published
func (r *SQLiteOutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	now := toMillis(r.now())
	result, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'published', processed_at = ?, published_at = ?
		WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark message as published: %w", err)
	}
	return requireRow(result)
}

// MarkAsFailed records a failed publish attempt
func (r *SQLiteOutboxRepository) MarkAsFailed(ctx context.Context, id string, errMsg string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET
			status = 'failed',
			last_error = ?,
			retry_count = retry_count + 1,
			processed_at = ?
		WHERE id = ?`, errMsg, toMillis(r.now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}
	return requireRow(result)
}

// DeletePublished deletes old published messages for cleanup
func (r *SQLiteOutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE status = 'published' AND published_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete published messages: %w", err)
	}
	return result.RowsAffected()
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errOutboxMessageNotFound
	}
	return nil
}

func scanSQLiteOutboxMessages(rows *sql.Rows) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var (
			status      string
			lastError   *string
			createdAt   int64
			processedAt *int64
			publishedAt *int64
		)
		err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&msg.Payload,
			&msg.Topic,
			&msg.PartitionKey,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&lastError,
			&createdAt,
			&processedAt,
			&publishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		msg.Status = domain.OutboxStatus(status)
		msg.LastError = deref(lastError)
		msg.CreatedAt = fromMillis(createdAt)
		msg.ProcessedAt = fromNullMillis(processedAt)
		msg.PublishedAt = fromNullMillis(publishedAt)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

var _ OutboxRepository = (*SQLiteOutboxRepository)(nil)
