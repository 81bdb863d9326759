package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
)

type policyRepository struct {
	BaseRepository
}

func NewPolicyRepository(base BaseRepository) repository.PolicyRepository {
	return &policyRepository{base}
}

// Get returns nil when no explicit policy row exists; callers treat that
// as default-allow.
func (r *policyRepository) Get(ctx context.Context, identityNumber, hospitalID string) (*model.AccessPolicy, error) {
	query := `
        SELECT identity_number, hospital_id, blocked, updated_at
        FROM access_policies
        WHERE identity_number = $1 AND hospital_id = $2
    `

	var policy model.AccessPolicy
	if err := r.GetDB().GetContext(ctx, &policy, query, identityNumber, hospitalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access policy: %w", err)
	}

	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context, identityNumber string) ([]*model.AccessPolicy, error) {
	query := `
        SELECT identity_number, hospital_id, blocked, updated_at
        FROM access_policies
        WHERE identity_number = $1
        ORDER BY hospital_id
    `

	var policies []*model.AccessPolicy
	if err := r.GetDB().SelectContext(ctx, &policies, query, identityNumber); err != nil {
		return nil, fmt.Errorf("failed to list access policies: %w", err)
	}

	return policies, nil
}

func (r *policyRepository) Upsert(ctx context.Context, policy *model.AccessPolicy) error {
	query := `
        INSERT INTO access_policies (identity_number, hospital_id, blocked, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (identity_number, hospital_id) DO UPDATE
        SET blocked = EXCLUDED.blocked, updated_at = NOW()
    `

	if _, err := r.GetDB().ExecContext(ctx, query, policy.IdentityNumber, policy.HospitalID, policy.Blocked); err != nil {
		return fmt.Errorf("failed to upsert access policy: %w", err)
	}

	return nil
}
