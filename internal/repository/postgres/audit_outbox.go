package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
)

type auditOutboxRepository struct {
	BaseRepository
}

func NewAuditOutboxRepository(base BaseRepository) repository.AuditOutboxRepository {
	return &auditOutboxRepository{base}
}

func (r *auditOutboxRepository) Create(ctx context.Context, event *model.AuditOutboxEvent) error {
	query := `
        INSERT INTO audit_outbox (id, payload, status, retry_count, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := r.GetDB().ExecContext(ctx, query,
		event.ID,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit outbox event: %w", err)
	}

	return nil
}

// GetPendingWithLock claims a batch of pending events using
// FOR UPDATE SKIP LOCKED so concurrent workers never process the same
// entry twice.
func (r *auditOutboxRepository) GetPendingWithLock(ctx context.Context, limit int) ([]*model.AuditOutboxEvent, error) {
	var events []*model.AuditOutboxEvent

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
            SELECT id, payload, status, retry_count, last_error, created_at, processed_at
            FROM audit_outbox
            WHERE status = $1
            ORDER BY created_at
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        `
		return tx.SelectContext(ctx, &events, query, model.AuditOutboxPending, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending audit outbox events: %w", err)
	}

	return events, nil
}

func (r *auditOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE audit_outbox
        SET status = $1, processed_at = NOW()
        WHERE id = $2
    `

	if _, err := r.GetDB().ExecContext(ctx, query, model.AuditOutboxPublished, id); err != nil {
		return fmt.Errorf("failed to mark audit outbox event published: %w", err)
	}

	return nil
}

func (r *auditOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
        UPDATE audit_outbox
        SET status = $1, retry_count = retry_count + 1, last_error = $2
        WHERE id = $3
    `

	if _, err := r.GetDB().ExecContext(ctx, query, model.AuditOutboxFailed, lastError, id); err != nil {
		return fmt.Errorf("failed to mark audit outbox event failed: %w", err)
	}

	return nil
}

func (r *auditOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_outbox WHERE status = $1`

	var count int64
	if err := r.GetDB().GetContext(ctx, &count, query, model.AuditOutboxPending); err != nil {
		return 0, fmt.Errorf("failed to count pending audit outbox events: %w", err)
	}

	return count, nil
}

func (r *auditOutboxRepository) DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
        DELETE FROM audit_outbox
        WHERE status = $1 AND processed_at < $2
    `

	result, err := r.GetDB().ExecContext(ctx, query, model.AuditOutboxPublished, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit outbox: %w", err)
	}

	return result.RowsAffected()
}
