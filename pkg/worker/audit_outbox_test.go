package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/pkg/logger"
	"github.com/medinet/federation-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "worker")

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

type fakeOutbox struct {
	pending   []*model.AuditOutboxEvent
	published []uuid.UUID
	failed    map[uuid.UUID]string
}

func newFakeOutbox(events ...*model.AuditOutboxEvent) *fakeOutbox {
	return &fakeOutbox{pending: events, failed: map[uuid.UUID]string{}}
}

func (f *fakeOutbox) Create(_ context.Context, event *model.AuditOutboxEvent) error {
	f.pending = append(f.pending, event)
	return nil
}

func (f *fakeOutbox) GetPendingWithLock(_ context.Context, limit int) ([]*model.AuditOutboxEvent, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	f.failed[id] = lastError
	return nil
}

func (f *fakeOutbox) CountPending(_ context.Context) (int64, error) {
	return int64(len(f.pending)), nil
}

func (f *fakeOutbox) DeletePublishedBefore(_ context.Context, _ time.Time) (int64, error) {
	return int64(len(f.published)), nil
}

type fakeAuditRepo struct {
	entries  []*model.AuditLogEntry
	failures int
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *model.AuditLogEntry) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("store still down")
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _ *model.AuditFilters) ([]*model.AuditLogEntry, error) {
	return f.entries, nil
}

func (f *fakeAuditRepo) Count(_ context.Context, _ *model.AuditFilters) (int64, error) {
	return int64(len(f.entries)), nil
}

type captureBroker struct {
	published []string
}

func (b *captureBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	b.published = append(b.published, channel)
	return nil
}

func (b *captureBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *captureBroker) Close() error { return nil }

func testConfig() AuditOutboxConfig {
	return AuditOutboxConfig{
		BatchSize:    10,
		PollInterval: time.Second,
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
	}
}

func parkedEvent(t *testing.T, action string) *model.AuditOutboxEvent {
	t.Helper()
	entry := &model.AuditLogEntry{
		ID:        uuid.New(),
		Action:    action,
		ActorID:   "doc-1",
		Success:   true,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)
	return &model.AuditOutboxEvent{
		ID:        entry.ID,
		Payload:   payload,
		Status:    model.AuditOutboxPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessBatchDrainsParkedEntries(t *testing.T) {
	outbox := newFakeOutbox(parkedEvent(t, "query"), parkedEvent(t, "emergency_access"))
	repo := &fakeAuditRepo{}
	broker := &captureBroker{}
	p := NewAuditOutboxProcessor(outbox, repo, broker, testConfig(), testLogger(), testMetrics)

	require.NoError(t, p.processBatch(context.Background()))

	assert.Len(t, repo.entries, 2)
	assert.Len(t, outbox.published, 2)
	assert.Len(t, broker.published, 2)
	assert.Empty(t, outbox.failed)
}

func TestProcessEventRetriesTransientFailures(t *testing.T) {
	event := parkedEvent(t, "query")
	outbox := newFakeOutbox(event)
	// Fails twice, succeeds on the third attempt.
	repo := &fakeAuditRepo{failures: 2}
	p := NewAuditOutboxProcessor(outbox, repo, &captureBroker{}, testConfig(), testLogger(), testMetrics)

	require.NoError(t, p.processBatch(context.Background()))

	assert.Len(t, repo.entries, 1)
	assert.Equal(t, []uuid.UUID{event.ID}, outbox.published)
}

func TestProcessEventMarksFailedAfterExhaustedRetries(t *testing.T) {
	event := parkedEvent(t, "query")
	outbox := newFakeOutbox(event)
	repo := &fakeAuditRepo{failures: 10}
	p := NewAuditOutboxProcessor(outbox, repo, &captureBroker{}, testConfig(), testLogger(), testMetrics)

	require.NoError(t, p.processBatch(context.Background()))

	assert.Empty(t, outbox.published)
	assert.Contains(t, outbox.failed, event.ID)
}

func TestProcessEventMarksUnparseablePayloadFailed(t *testing.T) {
	event := &model.AuditOutboxEvent{
		ID:      uuid.New(),
		Payload: []byte("not json"),
		Status:  model.AuditOutboxPending,
	}
	outbox := newFakeOutbox(event)
	repo := &fakeAuditRepo{}
	p := NewAuditOutboxProcessor(outbox, repo, &captureBroker{}, testConfig(), testLogger(), testMetrics)

	require.NoError(t, p.processBatch(context.Background()))

	assert.Empty(t, repo.entries)
	assert.Contains(t, outbox.failed, event.ID)
}

func TestNewProcessorValidatesConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewAuditOutboxProcessor(newFakeOutbox(), &fakeAuditRepo{}, &captureBroker{}, AuditOutboxConfig{}, testLogger(), testMetrics)
	})
}
