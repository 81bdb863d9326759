package audit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	"github.com/medinet/federation-api/pkg/messaging"
	"github.com/medinet/federation-api/pkg/metrics"
	"github.com/medinet/federation-api/pkg/security"
)

// Entry is the input to Log. ID and timestamp are assigned here.
type Entry struct {
	Action         string
	Actor          *model.Principal
	TargetIdentity string
	Detail         string
	Success        bool
}

// Config controls audit failure policy.
type Config struct {
	// Strict makes a failed append fatal to the enclosing operation.
	// Default is non-blocking: the entry is parked in the outbox for
	// asynchronous retry and the operation proceeds.
	Strict bool
}

// Service is the append-only audit pipeline. Entries are encrypted at the
// detail field, written to the store, and published on the audit channel.
// Compliance requires that entries are never dropped: when the store is
// unavailable the entry goes to the outbox table instead.
type Service struct {
	repo      repository.AuditRepository
	outbox    repository.AuditOutboxRepository
	broker    messaging.Broker
	encryptor security.Encryptor
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	cfg       Config
}

func NewService(
	repo repository.AuditRepository,
	outbox repository.AuditOutboxRepository,
	broker messaging.Broker,
	encryptor security.Encryptor,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Service {
	return &Service{
		repo:      repo,
		outbox:    outbox,
		broker:    broker,
		encryptor: encryptor,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// Log appends one audit entry. In non-strict mode it never fails the
// caller: append errors are absorbed into the outbox. In strict mode the
// entry is still parked for retry, but the error is surfaced so the
// enclosing operation fails with it.
func (s *Service) Log(ctx context.Context, e Entry) error {
	entry := &model.AuditLogEntry{
		ID:             uuid.New(),
		Action:         e.Action,
		TargetIdentity: e.TargetIdentity,
		Detail:         e.Detail,
		Success:        e.Success,
		CreatedAt:      time.Now().UTC(),
	}
	if e.Actor != nil {
		entry.ActorID = e.Actor.ID
		entry.ActorType = e.Actor.Type
		entry.ActorHospitalID = e.Actor.HospitalID
	}

	if err := s.sealDetail(entry); err != nil {
		return fmt.Errorf("failed to seal audit detail: %w", err)
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.metrics.AuditAppends.WithLabelValues("error").Inc()
		parkErr := s.park(ctx, entry, err)
		if s.cfg.Strict {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
		return parkErr
	}
	s.metrics.AuditAppends.WithLabelValues("ok").Inc()

	// Best-effort stream publication; the durable copy is already in the
	// store.
	if err := s.broker.Publish(ctx, messaging.ChannelAuditEvents, entry); err != nil {
		s.logger.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("failed to publish audit event")
	}

	return nil
}

// park stores the entry in the outbox for the retry worker.
func (s *Service) park(ctx context.Context, entry *model.AuditLogEntry, cause error) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry for outbox: %w", err)
	}

	event := &model.AuditOutboxEvent{
		ID:        entry.ID,
		Payload:   payload,
		Status:    model.AuditOutboxPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.outbox.Create(ctx, event); err != nil {
		// Both the store and the outbox are down. Log loudly; this is the
		// one path where an entry can be lost, and it is counted.
		s.metrics.AuditAppends.WithLabelValues("dropped").Inc()
		s.logger.Error().
			Err(err).
			AnErr("append_error", cause).
			Str("entry_id", entry.ID.String()).
			Str("action", entry.Action).
			Msg("audit entry could not be persisted or parked")
		return nil
	}

	s.metrics.AuditAppends.WithLabelValues("parked").Inc()
	s.logger.Warn().
		Err(cause).
		Str("entry_id", entry.ID.String()).
		Msg("audit append failed, entry parked for retry")
	return nil
}

// List returns audit entries most-recent-first.
func (s *Service) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLogEntry, error) {
	entries, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	for _, entry := range entries {
		if err := s.openDetail(entry); err != nil {
			return nil, fmt.Errorf("failed to open audit detail %s: %w", entry.ID, err)
		}
	}

	return entries, nil
}

// Count returns the total matching a filter set.
func (s *Service) Count(ctx context.Context, filters *model.AuditFilters) (int64, error) {
	return s.repo.Count(ctx, filters)
}

// AccessLogsFor returns the "who viewed my records" view for one identity.
func (s *Service) AccessLogsFor(ctx context.Context, identityNumber string, limit int) ([]*model.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.List(ctx, &model.AuditFilters{
		TargetIdentity: identityNumber,
		Limit:          limit,
	})
}

// Detail text can contain identity numbers, so it is sealed before hitting
// the store. Ciphertext is base64-encoded to stay text-column safe.
func (s *Service) sealDetail(entry *model.AuditLogEntry) error {
	if entry.Detail == "" {
		return nil
	}
	sealed, err := s.encryptor.Encrypt([]byte(entry.Detail))
	if err != nil {
		return err
	}
	entry.Detail = base64.StdEncoding.EncodeToString(sealed)
	return nil
}

func (s *Service) openDetail(entry *model.AuditLogEntry) error {
	if entry.Detail == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(entry.Detail)
	if err != nil {
		return err
	}
	opened, err := s.encryptor.Decrypt(raw)
	if err != nil {
		return err
	}
	entry.Detail = string(opened)
	return nil
}
