package postgres

import (
	"context"
	"fmt"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLogEntry) error {
	query := `
        INSERT INTO audit_logs (
            id, action, actor_id, actor_type, actor_hospital_id,
            target_identity, detail, success, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := r.GetDB().ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.ActorID,
		entry.ActorType,
		entry.ActorHospitalID,
		entry.TargetIdentity,
		entry.Detail,
		entry.Success,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	return nil
}

func (r *auditRepository) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLogEntry, error) {
	query := `
        SELECT id, action, actor_id, actor_type, actor_hospital_id,
               target_identity, detail, success, created_at
        FROM audit_logs WHERE 1=1
    `
	query, args := applyAuditFilters(query, filters)
	query += " ORDER BY created_at DESC"

	if filters != nil && filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filters.Offset > 0 {
			args = append(args, filters.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	var entries []*model.AuditLogEntry
	if err := r.GetDB().SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return entries, nil
}

func (r *auditRepository) Count(ctx context.Context, filters *model.AuditFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_logs WHERE 1=1`
	query, args := applyAuditFilters(query, filters)

	var total int64
	if err := r.GetDB().GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return total, nil
}

func applyAuditFilters(query string, filters *model.AuditFilters) (string, []interface{}) {
	var args []interface{}
	if filters == nil {
		return query, args
	}

	if filters.ActorID != "" {
		args = append(args, filters.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if filters.TargetIdentity != "" {
		args = append(args, filters.TargetIdentity)
		query += fmt.Sprintf(" AND target_identity = $%d", len(args))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if !filters.Since.IsZero() {
		args = append(args, filters.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filters.Until.IsZero() {
		args = append(args, filters.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	return query, args
}
