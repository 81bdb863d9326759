package federation

import (
	"context"
	"sync"
	"time"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/service/audit"
	apperrors "github.com/medinet/federation-api/pkg/errors"
)

// GetPatientSummary is the thin read: merged demographics plus the list of
// hospitals holding records, without record contents. Policy blocking
// applies the same way as for the full query.
func (s *Service) GetPatientSummary(ctx context.Context, identityNumber string, principal *model.Principal) (*model.PatientSummary, error) {
	if identityNumber == "" {
		return nil, apperrors.BadRequest("identity number is required", nil)
	}
	if principal == nil {
		return nil, apperrors.Unauthorized(nil)
	}
	if !principal.CanQueryAnyIdentity() && !principal.IsSelf(identityNumber) {
		if err := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionView,
			Actor:          principal,
			TargetIdentity: identityNumber,
			Detail:         "patient attempted to view another identity's summary",
			Success:        false,
		}); err != nil {
			return nil, apperrors.Unavailable("audit log unavailable", err)
		}
		return nil, apperrors.Forbidden("patients may only view their own summary", nil)
	}

	entry, err := s.indexRepo.Get(ctx, identityNumber)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Unavailable("identity index unavailable", err)
	}

	candidates := entry.Hospitals()
	summaries := make([]*hospitalSummary, 0, len(candidates))
	for _, hospitalID := range candidates {
		blocked, err := s.policy.IsBlocked(ctx, identityNumber, hospitalID)
		if err != nil {
			return nil, apperrors.Unavailable("access policy store unavailable", err)
		}
		if blocked {
			continue
		}
		summaries = append(summaries, &hospitalSummary{hospitalID: hospitalID})
	}

	s.fetchSummaries(ctx, identityNumber, summaries)

	summary := &model.PatientSummary{
		IdentityNumber: identityNumber,
		HospitalIDs:    candidates,
		LastUpdated:    entry.UpdatedAt.UTC().Format(time.RFC3339),
	}
	// First non-empty value per field wins, in index order.
	for _, hs := range summaries {
		if hs.result == nil {
			continue
		}
		mergeDemographics(&summary.Demographics, &hs.result.Demographics)
	}

	if err := s.auditor.Log(ctx, audit.Entry{
		Action:         model.AuditActionView,
		Actor:          principal,
		TargetIdentity: identityNumber,
		Detail:         "patient summary viewed",
		Success:        true,
	}); err != nil {
		return nil, apperrors.Unavailable("audit log unavailable", err)
	}

	return summary, nil
}

type hospitalSummary struct {
	hospitalID string
	result     *hospitalSummaryResult
}

type hospitalSummaryResult struct {
	Demographics      model.Demographics
	BloodType         string
	Allergies         []string
	ChronicConditions []string
	EmergencyContact  string
}

// fetchSummaries runs FetchSummary against each hospital concurrently.
// Failures are dropped; the summary read is best-effort.
func (s *Service) fetchSummaries(ctx context.Context, identityNumber string, summaries []*hospitalSummary) {
	var wg sync.WaitGroup
	for _, hs := range summaries {
		wg.Add(1)
		go func(hs *hospitalSummary) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, s.cfg.HospitalTimeout)
			defer cancel()

			client, err := s.registry.ClientFor(callCtx, hs.hospitalID)
			if err != nil {
				return
			}
			nodeSummary, err := client.FetchSummary(callCtx, identityNumber)
			if err != nil {
				s.logger.Warn().Err(err).Str("hospital_id", hs.hospitalID).Msg("summary fetch failed")
				return
			}
			hs.result = &hospitalSummaryResult{
				Demographics:      nodeSummary.Demographics,
				BloodType:         nodeSummary.BloodType,
				Allergies:         nodeSummary.Allergies,
				ChronicConditions: nodeSummary.ChronicConditions,
				EmergencyContact:  nodeSummary.EmergencyContact,
			}
		}(hs)
	}
	wg.Wait()
}

func mergeDemographics(dst, src *model.Demographics) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.DateOfBirth == "" {
		dst.DateOfBirth = src.DateOfBirth
	}
	if dst.Gender == "" {
		dst.Gender = src.Gender
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
}
