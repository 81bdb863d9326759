package policy

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	"github.com/medinet/federation-api/internal/service/audit"
	apperrors "github.com/medinet/federation-api/pkg/errors"
)

// Service enforces patient-controlled per-hospital blocking. This is the
// single privacy control point of the federation: the coordinator consults
// it before any fan-out call is made.
type Service struct {
	repo         repository.PolicyRepository
	hospitalRepo repository.HospitalRepository
	auditor      *audit.Service
	cache        *gocache.Cache
}

func NewService(repo repository.PolicyRepository, hospitalRepo repository.HospitalRepository, auditor *audit.Service, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		repo:         repo,
		hospitalRepo: hospitalRepo,
		auditor:      auditor,
		cache:        gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// IsBlocked reports whether the patient has blocked the hospital. Absence
// of an explicit policy row means not blocked.
func (s *Service) IsBlocked(ctx context.Context, identityNumber, hospitalID string) (bool, error) {
	key := cacheKey(identityNumber, hospitalID)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(bool), nil
	}

	p, err := s.repo.Get(ctx, identityNumber, hospitalID)
	if err != nil {
		return false, fmt.Errorf("failed to check access policy: %w", err)
	}

	blocked := p != nil && p.Blocked
	s.cache.SetDefault(key, blocked)
	return blocked, nil
}

// SetBlocked flips the block flag for one hospital. Self-service only: the
// caller must be the identity owner, checked here even though the handler
// layer also scopes the route, because every other component assumes this
// gate has been applied.
func (s *Service) SetBlocked(ctx context.Context, principal *model.Principal, identityNumber, hospitalID string, blocked bool) error {
	if principal == nil || !principal.IsSelf(identityNumber) {
		if err := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionPolicyChange,
			Actor:          principal,
			TargetIdentity: identityNumber,
			Detail:         fmt.Sprintf("denied policy change for hospital %s", hospitalID),
			Success:        false,
		}); err != nil {
			return apperrors.Unavailable("audit log unavailable", err)
		}
		return apperrors.Forbidden("access policy can only be changed by the identity owner", nil)
	}

	// Reject unknown hospitals so typos cannot create dangling rows.
	if _, err := s.hospitalRepo.Get(ctx, hospitalID); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NotFound("hospital", err)
		}
		return fmt.Errorf("failed to validate hospital: %w", err)
	}

	if err := s.repo.Upsert(ctx, &model.AccessPolicy{
		IdentityNumber: identityNumber,
		HospitalID:     hospitalID,
		Blocked:        blocked,
	}); err != nil {
		return fmt.Errorf("failed to update access policy: %w", err)
	}

	s.cache.Delete(cacheKey(identityNumber, hospitalID))

	if err := s.auditor.Log(ctx, audit.Entry{
		Action:         model.AuditActionPolicyChange,
		Actor:          principal,
		TargetIdentity: identityNumber,
		Detail:         fmt.Sprintf("hospital %s blocked=%t", hospitalID, blocked),
		Success:        true,
	}); err != nil {
		return apperrors.Unavailable("audit log unavailable", err)
	}

	return nil
}

// List returns the patient's explicit policy rows. Self-service only.
func (s *Service) List(ctx context.Context, principal *model.Principal, identityNumber string) ([]*model.AccessPolicy, error) {
	if principal == nil || !principal.IsSelf(identityNumber) {
		return nil, apperrors.Forbidden("access policies can only be read by the identity owner", nil)
	}

	policies, err := s.repo.List(ctx, identityNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list access policies: %w", err)
	}

	return policies, nil
}

func cacheKey(identityNumber, hospitalID string) string {
	return identityNumber + "|" + hospitalID
}
