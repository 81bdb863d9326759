// Package emergency implements the break-glass access path: a degraded
// trust variant of the coordinator that bypasses consent checks and
// access-policy blocking, compensated by mandatory auditing and an
// out-of-band compliance alert.
package emergency

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medinet/federation-api/internal/email"
	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	"github.com/medinet/federation-api/internal/service/audit"
	apperrors "github.com/medinet/federation-api/pkg/errors"
	"github.com/medinet/federation-api/pkg/messaging"
)

// ClientRegistry is the subset of the hospital registry the emergency
// path needs.
type ClientRegistry interface {
	ClientFor(ctx context.Context, hospitalID string) (hospital.Client, error)
}

type Config struct {
	HospitalTimeout time.Duration
}

type Service struct {
	indexRepo repository.IndexRepository
	registry  ClientRegistry
	auditor   *audit.Service
	notifier  email.Notifier
	broker    messaging.Broker
	logger    zerolog.Logger
	cfg       Config
}

func NewService(
	indexRepo repository.IndexRepository,
	registry ClientRegistry,
	auditor *audit.Service,
	notifier email.Notifier,
	broker messaging.Broker,
	logger zerolog.Logger,
	cfg Config,
) *Service {
	if cfg.HospitalTimeout <= 0 {
		cfg.HospitalTimeout = 5 * time.Second
	}
	return &Service{
		indexRepo: indexRepo,
		registry:  registry,
		auditor:   auditor,
		notifier:  notifier,
		broker:    broker,
		logger:    logger,
		cfg:       cfg,
	}
}

// Query returns the minimal safety profile for an identity. No principal
// check, no policy filter: blocking a hospital must never keep life-safety
// data from surfacing here. An emergency_access audit entry is written
// whether or not the identity is found. requestRef is an opaque caller
// reference (ambulance unit, ER station) carried into the audit trail.
func (s *Service) Query(ctx context.Context, identityNumber, requestRef string) (*model.SafetyProfile, error) {
	if identityNumber == "" {
		return nil, apperrors.BadRequest("identity number is required", nil)
	}

	profile := &model.SafetyProfile{IdentityNumber: identityNumber}

	entry, err := s.indexRepo.Get(ctx, identityNumber)
	switch {
	case apperrors.IsNotFound(err):
		s.record(ctx, identityNumber, requestRef, false, nil)
		return profile, nil
	case err != nil:
		s.record(ctx, identityNumber, requestRef, false, err)
		return nil, apperrors.Unavailable("identity index unavailable", err)
	}

	// All hospitals in the index, blocked or not.
	candidates := entry.Hospitals()
	summaries := s.fetchAll(ctx, identityNumber, candidates)

	for _, ns := range summaries {
		if ns.summary == nil {
			continue
		}
		profile.Found = true
		profile.SourceHospitals = append(profile.SourceHospitals, ns.hospitalID)
		mergeSafety(profile, ns.summary)
	}

	s.record(ctx, identityNumber, requestRef, profile.Found, nil)
	return profile, nil
}

type nodeResult struct {
	hospitalID string
	summary    *hospital.NodeSummary
}

func (s *Service) fetchAll(ctx context.Context, identityNumber string, hospitalIDs []string) []*nodeResult {
	results := make([]*nodeResult, len(hospitalIDs))

	var wg sync.WaitGroup
	for i, hospitalID := range hospitalIDs {
		results[i] = &nodeResult{hospitalID: hospitalID}
		wg.Add(1)
		go func(res *nodeResult) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, s.cfg.HospitalTimeout)
			defer cancel()

			client, err := s.registry.ClientFor(callCtx, res.hospitalID)
			if err != nil {
				s.logger.Error().Err(err).Str("hospital_id", res.hospitalID).Msg("emergency: failed to resolve hospital")
				return
			}
			summary, err := client.FetchSummary(callCtx, identityNumber)
			if err != nil {
				s.logger.Warn().Err(err).Str("hospital_id", res.hospitalID).Msg("emergency: summary fetch failed")
				return
			}
			res.summary = summary
		}(results[i])
	}
	wg.Wait()

	return results
}

// AlertEvent is published for every break-glass access so compliance
// tooling can follow emergencies in real time, independent of the email
// alert and the audit store.
type AlertEvent struct {
	IdentityNumber string    `json:"identity_number"`
	RequestRef     string    `json:"request_ref"`
	Found          bool      `json:"found"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// record writes the mandatory audit entry, fires the compliance alert and
// publishes the alert event. None of the three may abort the emergency
// response: audit-store outages fail ordinary operations, but a life-safety
// read is answered regardless and the entry is parked for retry.
func (s *Service) record(ctx context.Context, identityNumber, requestRef string, found bool, cause error) {
	detail := fmt.Sprintf("break-glass access, found=%t, ref=%s", found, requestRef)
	if cause != nil {
		detail = fmt.Sprintf("break-glass access failed: %v, ref=%s", cause, requestRef)
	}

	if err := s.auditor.Log(ctx, audit.Entry{
		Action:         model.AuditActionEmergencyAccess,
		TargetIdentity: identityNumber,
		Detail:         detail,
		Success:        cause == nil,
	}); err != nil {
		s.logger.Error().Err(err).Str("identity_number", identityNumber).Msg("failed to append emergency audit entry")
	}

	if err := s.notifier.SendEmergencyAccessAlert(ctx, identityNumber, found, requestRef); err != nil {
		s.logger.Error().Err(err).Str("identity_number", identityNumber).Msg("failed to send emergency access alert")
	}

	if err := s.broker.Publish(ctx, messaging.ChannelEmergencyAlerts, AlertEvent{
		IdentityNumber: identityNumber,
		RequestRef:     requestRef,
		Found:          found,
		OccurredAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("identity_number", identityNumber).Msg("failed to publish emergency alert event")
	}
}

func mergeSafety(profile *model.SafetyProfile, summary *hospital.NodeSummary) {
	if profile.Name == "" {
		profile.Name = summary.Demographics.Name
	}
	if profile.BloodType == "" {
		profile.BloodType = summary.BloodType
	}
	if profile.EmergencyContact == "" {
		profile.EmergencyContact = summary.EmergencyContact
	}
	profile.Allergies = mergeUnique(profile.Allergies, summary.Allergies)
	profile.ChronicConditions = mergeUnique(profile.ChronicConditions, summary.ChronicConditions)
}

func mergeUnique(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range extra {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			existing = append(existing, v)
		}
	}
	sort.Strings(existing)
	return existing
}
