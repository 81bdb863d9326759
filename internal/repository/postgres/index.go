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

type indexRepository struct {
	BaseRepository
}

func NewIndexRepository(base BaseRepository) repository.IndexRepository {
	return &indexRepository{base}
}

func (r *indexRepository) Get(ctx context.Context, identityNumber string) (*model.IdentityIndexEntry, error) {
	query := `
        SELECT identity_number, hospital_ids, updated_at
        FROM identity_index
        WHERE identity_number = $1
    `

	var entry model.IdentityIndexEntry
	if err := r.GetDB().GetContext(ctx, &entry, query, identityNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("index entry", err)
		}
		return nil, fmt.Errorf("failed to get index entry: %w", err)
	}

	return &entry, nil
}

// AddHospital appends the hospital to the identity's set, preserving
// insertion order. The array_position guard makes concurrent duplicate
// adds for the same pair a no-op at the row level.
func (r *indexRepository) AddHospital(ctx context.Context, identityNumber, hospitalID string) error {
	query := `
        INSERT INTO identity_index (identity_number, hospital_ids, updated_at)
        VALUES ($1, ARRAY[$2]::text[], NOW())
        ON CONFLICT (identity_number) DO UPDATE
        SET hospital_ids = identity_index.hospital_ids || EXCLUDED.hospital_ids,
            updated_at = NOW()
        WHERE array_position(identity_index.hospital_ids, $2) IS NULL
    `

	if _, err := r.GetDB().ExecContext(ctx, query, identityNumber, hospitalID); err != nil {
		return fmt.Errorf("failed to add hospital to index: %w", err)
	}

	return nil
}
