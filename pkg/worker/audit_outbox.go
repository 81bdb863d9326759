package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/repository"
	"github.com/medinet/federation-api/pkg/logger"
	"github.com/medinet/federation-api/pkg/messaging"
	"github.com/medinet/federation-api/pkg/metrics"
)

type AuditOutboxConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// AuditOutboxProcessor drains parked audit entries back into the audit
// store and onto the audit stream. Entries land in the outbox when a
// synchronous append failed; compliance requires they are never dropped.
type AuditOutboxProcessor struct {
	outbox  repository.AuditOutboxRepository
	audit   repository.AuditRepository
	broker  messaging.Broker
	config  AuditOutboxConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewAuditOutboxProcessor(
	outbox repository.AuditOutboxRepository,
	audit repository.AuditRepository,
	broker messaging.Broker,
	config AuditOutboxConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *AuditOutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		panic("MaxRetries must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &AuditOutboxProcessor{
		outbox:  outbox,
		audit:   audit,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *AuditOutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting audit outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down audit outbox processor")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process audit outbox batch")
			}
		}
	}
}

func (p *AuditOutboxProcessor) processBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.AuditRetryDuration)
	defer timer.ObserveDuration()

	events, err := p.outbox.GetPendingWithLock(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_audit", "error").Inc()
		return fmt.Errorf("failed to get pending audit events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_audit", "success").Inc()

	if pending, err := p.outbox.CountPending(ctx); err == nil {
		p.metrics.AuditOutboxDepth.Set(float64(pending))
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process audit outbox event",
				"event_id", event.ID.String())
			continue
		}
	}

	return nil
}

func (p *AuditOutboxProcessor) processEvent(ctx context.Context, event *model.AuditOutboxEvent) error {
	var entry model.AuditLogEntry
	if err := json.Unmarshal(event.Payload, &entry); err != nil {
		// Unparseable payloads cannot be retried; mark failed so they
		// surface in the failed queue instead of looping forever.
		p.metrics.AuditRetries.WithLabelValues("error").Inc()
		if markErr := p.outbox.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			p.logger.Error(markErr, "Failed to mark audit outbox event failed")
		}
		return fmt.Errorf("failed to unmarshal audit entry: %w", err)
	}

	err := retry(p.config.MaxRetries, p.config.RetryDelay, func() error {
		return p.audit.Create(ctx, &entry)
	})
	if err != nil {
		p.metrics.AuditRetries.WithLabelValues("error").Inc()
		if markErr := p.outbox.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			p.logger.Error(markErr, "Failed to mark audit outbox event failed")
		}
		return err
	}

	if err := p.broker.Publish(ctx, messaging.ChannelAuditEvents, &entry); err != nil {
		p.logger.Error(err, "Failed to publish retried audit event",
			"event_id", event.ID.String())
	}

	p.metrics.AuditRetries.WithLabelValues("success").Inc()
	return p.outbox.MarkPublished(ctx, event.ID)
}

// Cleanup deletes published outbox rows older than the retention window.
func (p *AuditOutboxProcessor) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return p.outbox.DeletePublishedBefore(ctx, time.Now().Add(-retention))
}

func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
