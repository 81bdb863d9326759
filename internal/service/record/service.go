// Package record implements the sole cross-boundary write: creating a
// record at one hospital node and maintaining the central identity index
// alongside it.
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	"github.com/medinet/federation-api/internal/service/audit"
	apperrors "github.com/medinet/federation-api/pkg/errors"
)

// ClientRegistry is the subset of the hospital registry the write path
// needs.
type ClientRegistry interface {
	ClientFor(ctx context.Context, hospitalID string) (hospital.Client, error)
}

type Service struct {
	indexRepo repository.IndexRepository
	registry  ClientRegistry
	auditor   *audit.Service
	logger    zerolog.Logger
}

func NewService(indexRepo repository.IndexRepository, registry ClientRegistry, auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		indexRepo: indexRepo,
		registry:  registry,
		auditor:   auditor,
		logger:    logger,
	}
}

// indexRetries bounds the immediate index-maintenance retry after a
// successful node write. A record must never stay invisible to future
// queries, so failure after retries is escalated loudly.
const indexRetries = 3

// Create writes a record at the doctor's own hospital and adds the
// hospital to the identity's index entry. The index add is idempotent:
// creating a second record for the same (identity, hospital) pair leaves
// the hospital listed exactly once.
func (s *Service) Create(ctx context.Context, principal *model.Principal, hospitalID string, req *model.CreateRecordRequest) (string, error) {
	if principal == nil {
		return "", apperrors.Unauthorized(nil)
	}
	// Record creation is scoped to the doctor's own hospital; cross-
	// hospital access stays strictly read-only.
	if principal.Type != model.PrincipalDoctor || principal.HospitalID != hospitalID {
		if err := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionCreate,
			Actor:          principal,
			TargetIdentity: req.IdentityNumber,
			Detail:         fmt.Sprintf("denied record creation at hospital %s", hospitalID),
			Success:        false,
		}); err != nil {
			return "", apperrors.Unavailable("audit log unavailable", err)
		}
		return "", apperrors.Forbidden("records may only be created by a doctor at their own hospital", nil)
	}
	if req.IdentityNumber == "" {
		return "", apperrors.BadRequest("identity number is required", nil)
	}

	client, err := s.registry.ClientFor(ctx, hospitalID)
	if err != nil {
		return "", apperrors.NotFound("hospital", err)
	}

	recordID, err := client.CreateRecord(ctx, req)
	if err != nil {
		if auditErr := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionCreate,
			Actor:          principal,
			TargetIdentity: req.IdentityNumber,
			Detail:         fmt.Sprintf("record creation failed at hospital %s", hospitalID),
			Success:        false,
		}); auditErr != nil {
			return "", apperrors.Unavailable("audit log unavailable", auditErr)
		}
		return "", apperrors.Unavailable("hospital node rejected record creation", err)
	}

	if err := s.addToIndex(ctx, req.IdentityNumber, hospitalID); err != nil {
		// The record exists at the node but is invisible to federation
		// until the index catches up. Escalate instead of hiding it.
		s.logger.Error().
			Err(err).
			Str("record_id", recordID).
			Str("hospital_id", hospitalID).
			Msg("record created but index update failed")
		if auditErr := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionCreate,
			Actor:          principal,
			TargetIdentity: req.IdentityNumber,
			Detail:         fmt.Sprintf("record %s created at hospital %s but index update failed", recordID, hospitalID),
			Success:        false,
		}); auditErr != nil {
			return "", apperrors.Unavailable("audit log unavailable", auditErr)
		}
		return "", apperrors.Unavailable("record created but not yet indexed", err)
	}

	if err := s.auditor.Log(ctx, audit.Entry{
		Action:         model.AuditActionCreate,
		Actor:          principal,
		TargetIdentity: req.IdentityNumber,
		Detail:         fmt.Sprintf("record %s created at hospital %s", recordID, hospitalID),
		Success:        true,
	}); err != nil {
		return "", apperrors.Unavailable("audit log unavailable", err)
	}

	return recordID, nil
}

func (s *Service) addToIndex(ctx context.Context, identityNumber, hospitalID string) error {
	var lastErr error
	for attempt := 0; attempt < indexRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		if lastErr = s.indexRepo.AddHospital(ctx, identityNumber, hospitalID); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to update identity index after %d attempts: %w", indexRetries, lastErr)
}
