// Package federation implements the cross-hospital query coordinator: one
// logically-atomic read over independently-owned, independently-failing
// hospital nodes.
package federation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	"github.com/medinet/federation-api/internal/service/audit"
	apperrors "github.com/medinet/federation-api/pkg/errors"
	"github.com/medinet/federation-api/pkg/metrics"
)

// PolicyChecker is what the coordinator needs from the access policy
// service.
type PolicyChecker interface {
	IsBlocked(ctx context.Context, identityNumber, hospitalID string) (bool, error)
}

// ClientRegistry resolves hospital IDs to clients and directory entries.
type ClientRegistry interface {
	ClientFor(ctx context.Context, hospitalID string) (hospital.Client, error)
	Hospital(ctx context.Context, id string) (*model.Hospital, error)
}

type Config struct {
	// HospitalTimeout bounds each per-hospital call. Because all calls run
	// in parallel, it also bounds the whole fan-out.
	HospitalTimeout time.Duration
}

// Service is the federated query coordinator.
type Service struct {
	indexRepo repository.IndexRepository
	policy    PolicyChecker
	registry  ClientRegistry
	auditor   *audit.Service
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       Config
}

func NewService(
	indexRepo repository.IndexRepository,
	policy PolicyChecker,
	registry ClientRegistry,
	auditor *audit.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Service {
	if cfg.HospitalTimeout <= 0 {
		cfg.HospitalTimeout = 5 * time.Second
	}
	return &Service{
		indexRepo: indexRepo,
		policy:    policy,
		registry:  registry,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// QueryPatient answers "what does the network know about this identity".
// Hospital ordering follows index insertion order regardless of response
// timing; per-hospital failures are represented in-band and never fail
// the whole query.
func (s *Service) QueryPatient(ctx context.Context, identityNumber string, principal *model.Principal) (*model.AggregatedQueryResponse, error) {
	start := time.Now()

	if identityNumber == "" {
		return nil, apperrors.BadRequest("identity number is required", nil)
	}
	if principal == nil {
		return nil, apperrors.Unauthorized(nil)
	}

	resp := &model.AggregatedQueryResponse{
		IdentityNumber: identityNumber,
		Hospitals:      []*model.HospitalQueryResult{},
	}

	// Authorize: patients may only query themselves. Doctors and admins
	// have network-wide read access, compensated by auditing and blocking.
	if !principal.CanQueryAnyIdentity() && !principal.IsSelf(identityNumber) {
		if err := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionQuery,
			Actor:          principal,
			TargetIdentity: identityNumber,
			Detail:         "patient attempted to query another identity",
			Success:        false,
		}); err != nil {
			return nil, apperrors.Unavailable("audit log unavailable", err)
		}
		s.metrics.QueriesTotal.WithLabelValues("forbidden").Inc()
		return nil, apperrors.Forbidden("patients may only query their own records", nil)
	}

	// Index lookup. An unknown identity is a valid empty result, distinct
	// from a failed query.
	lookupStart := time.Now()
	entry, err := s.indexRepo.Get(ctx, identityNumber)
	if err != nil {
		if apperrors.IsNotFound(err) {
			resp.Steps = append(resp.Steps,
				step("lookup", "identity not present in index", lookupStart),
				step("aggregate", "0 hospitals, 0 records", start),
			)
			resp.ElapsedMs = msSince(start)
			if err := s.auditor.Log(ctx, audit.Entry{
				Action:         model.AuditActionQuery,
				Actor:          principal,
				TargetIdentity: identityNumber,
				Detail:         "query returned empty result: identity unknown",
				Success:        true,
			}); err != nil {
				return nil, apperrors.Unavailable("audit log unavailable", err)
			}
			s.metrics.QueriesTotal.WithLabelValues("empty").Inc()
			return resp, nil
		}
		if auditErr := s.auditor.Log(ctx, audit.Entry{
			Action:         model.AuditActionQuery,
			Actor:          principal,
			TargetIdentity: identityNumber,
			Detail:         "query failed: index store unavailable",
			Success:        false,
		}); auditErr != nil {
			return nil, apperrors.Unavailable("audit log unavailable", auditErr)
		}
		s.metrics.QueriesTotal.WithLabelValues("index_error").Inc()
		return nil, apperrors.Unavailable("identity index unavailable", err)
	}
	candidates := entry.Hospitals()
	resp.Steps = append(resp.Steps, step("lookup",
		fmt.Sprintf("index lists %d hospital(s)", len(candidates)), lookupStart))

	// Policy filter before any network call: blocked hospitals are
	// excluded from fan-out but still appear in the response so the caller
	// can see that data exists and is withheld.
	filterStart := time.Now()
	results := make([]*model.HospitalQueryResult, len(candidates))
	fanout := make([]int, 0, len(candidates))
	for i, hospitalID := range candidates {
		results[i] = &model.HospitalQueryResult{
			HospitalID:   hospitalID,
			HospitalName: s.hospitalName(ctx, hospitalID),
			Records:      []*model.MedicalRecord{},
		}

		blocked, err := s.policy.IsBlocked(ctx, identityNumber, hospitalID)
		if err != nil {
			// The policy store shares the coordination tier with the
			// index; treat its failure the same way rather than risk
			// revealing blocked data.
			s.metrics.QueriesTotal.WithLabelValues("policy_error").Inc()
			return nil, apperrors.Unavailable("access policy store unavailable", err)
		}
		if blocked {
			results[i].Status = model.HospitalStatusBlocked
			continue
		}
		fanout = append(fanout, i)
	}
	resp.Steps = append(resp.Steps, step("policy_filter",
		fmt.Sprintf("%d of %d hospital(s) queryable", len(fanout), len(candidates)), filterStart))

	// Scatter-gather: one task per hospital, wait for all to settle.
	fanoutStart := time.Now()
	s.fanOut(ctx, identityNumber, results, fanout)
	resp.Steps = append(resp.Steps, step("fanout",
		fmt.Sprintf("queried %d hospital(s)", len(fanout)), fanoutStart))

	// Aggregate in index order, not arrival order.
	for _, result := range results {
		resp.TotalRecords += len(result.Records)
	}
	resp.Hospitals = results
	resp.ElapsedMs = msSince(start)
	resp.Steps = append(resp.Steps, step("aggregate",
		fmt.Sprintf("%d hospital(s), %d record(s)", len(results), resp.TotalRecords), fanoutStart))

	if err := s.auditor.Log(ctx, audit.Entry{
		Action:         model.AuditActionQuery,
		Actor:          principal,
		TargetIdentity: identityNumber,
		Detail:         fmt.Sprintf("federated query: %d hospital(s), %d record(s)", len(results), resp.TotalRecords),
		Success:        true,
	}); err != nil {
		return nil, apperrors.Unavailable("audit log unavailable", err)
	}
	s.metrics.QueriesTotal.WithLabelValues("ok").Inc()
	s.metrics.FanoutDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	return resp, nil
}

// fanOut runs the per-hospital fetches concurrently and fills results in
// place. indices selects the non-blocked candidates. One slow hospital
// delays only overall completion, never the other results.
func (s *Service) fanOut(ctx context.Context, identityNumber string, results []*model.HospitalQueryResult, indices []int) {
	var wg sync.WaitGroup
	for _, i := range indices {
		wg.Add(1)
		go func(result *model.HospitalQueryResult) {
			defer wg.Done()
			s.queryOne(ctx, identityNumber, result)
		}(results[i])
	}
	wg.Wait()
}

// queryOne performs a single bounded hospital fetch and records the tagged
// outcome.
func (s *Service) queryOne(ctx context.Context, identityNumber string, result *model.HospitalQueryResult) {
	callStart := time.Now()
	defer func() {
		result.ElapsedMs = msSince(callStart)
		s.metrics.HospitalCalls.WithLabelValues(result.HospitalID, string(result.Status)).Inc()
		s.metrics.HospitalLatency.WithLabelValues(result.HospitalID).Observe(time.Since(callStart).Seconds())
	}()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.HospitalTimeout)
	defer cancel()

	client, err := s.registry.ClientFor(callCtx, result.HospitalID)
	if err != nil {
		result.Status = model.HospitalStatusError
		result.Error = "hospital not resolvable"
		s.logger.Error().Err(err).Str("hospital_id", result.HospitalID).Msg("failed to resolve hospital client")
		return
	}

	records, err := client.FetchRecords(callCtx, identityNumber)
	if err != nil {
		result.Status = hospital.Classify(err)
		result.Error = err.Error()
		return
	}

	result.Status = model.HospitalStatusOK
	if records != nil {
		result.Records = records
	}
}

func (s *Service) hospitalName(ctx context.Context, hospitalID string) string {
	hosp, err := s.registry.Hospital(ctx, hospitalID)
	if err != nil {
		return hospitalID
	}
	return hosp.Name
}

func step(name, detail string, since time.Time) model.QueryStep {
	return model.QueryStep{
		Name:      name,
		Detail:    detail,
		ElapsedMs: msSince(since),
	}
}

func msSince(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
