package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	apperrors "github.com/medinet/federation-api/pkg/errors"
)

type hospitalRepository struct {
	BaseRepository
}

func NewHospitalRepository(base BaseRepository) repository.HospitalRepository {
	return &hospitalRepository{base}
}

func (r *hospitalRepository) Get(ctx context.Context, id string) (*model.Hospital, error) {
	query := `
        SELECT id, name, base_url, region, active, created_at
        FROM hospitals
        WHERE id = $1
    `

	var hospital model.Hospital
	if err := r.GetDB().GetContext(ctx, &hospital, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("hospital", err)
		}
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}

	return &hospital, nil
}

func (r *hospitalRepository) List(ctx context.Context) ([]*model.Hospital, error) {
	query := `
        SELECT id, name, base_url, region, active, created_at
        FROM hospitals
        WHERE active = true
        ORDER BY id
    `

	var hospitals []*model.Hospital
	if err := r.GetDB().SelectContext(ctx, &hospitals, query); err != nil {
		return nil, fmt.Errorf("failed to list hospitals: %w", err)
	}

	return hospitals, nil
}

func (r *hospitalRepository) Upsert(ctx context.Context, hospital *model.Hospital) error {
	query := `
        INSERT INTO hospitals (id, name, base_url, region, active, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (id) DO UPDATE
        SET name = EXCLUDED.name,
            base_url = EXCLUDED.base_url,
            region = EXCLUDED.region,
            active = EXCLUDED.active
    `

	if _, err := r.GetDB().ExecContext(ctx, query,
		hospital.ID, hospital.Name, hospital.BaseURL, hospital.Region, hospital.Active); err != nil {
		return fmt.Errorf("failed to upsert hospital: %w", err)
	}

	return nil
}
