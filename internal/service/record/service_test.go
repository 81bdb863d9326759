package record_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/service/audit"
	"github.com/medinet/federation-api/internal/service/record"
	apperrors "github.com/medinet/federation-api/pkg/errors"
	"github.com/medinet/federation-api/pkg/metrics"
	"github.com/medinet/federation-api/pkg/security"
)

var testMetrics = metrics.NewMetrics("test", "record")

type fakeIndexRepo struct {
	entries map[string][]string
	addErr  error
	adds    int
}

func (f *fakeIndexRepo) Get(_ context.Context, identityNumber string) (*model.IdentityIndexEntry, error) {
	hospitalIDs, ok := f.entries[identityNumber]
	if !ok {
		return nil, apperrors.NotFound("identity", nil)
	}
	return &model.IdentityIndexEntry{IdentityNumber: identityNumber, HospitalIDs: hospitalIDs}, nil
}

func (f *fakeIndexRepo) AddHospital(_ context.Context, identityNumber, hospitalID string) error {
	f.adds++
	if f.addErr != nil {
		return f.addErr
	}
	for _, id := range f.entries[identityNumber] {
		if id == hospitalID {
			return nil
		}
	}
	f.entries[identityNumber] = append(f.entries[identityNumber], hospitalID)
	return nil
}

type fakeClient struct {
	id        string
	createErr error
	created   int
}

func (c *fakeClient) HospitalID() string { return c.id }

func (c *fakeClient) FetchRecords(_ context.Context, _ string) ([]*model.MedicalRecord, error) {
	return nil, errors.New("not used on the write path")
}

func (c *fakeClient) FetchSummary(_ context.Context, _ string) (*hospital.NodeSummary, error) {
	return nil, errors.New("not used on the write path")
}

func (c *fakeClient) CreateRecord(_ context.Context, _ *model.CreateRecordRequest) (string, error) {
	c.created++
	if c.createErr != nil {
		return "", c.createErr
	}
	return "rec-001", nil
}

type fakeRegistry struct {
	clients map[string]*fakeClient
}

func (f *fakeRegistry) ClientFor(_ context.Context, hospitalID string) (hospital.Client, error) {
	client, ok := f.clients[hospitalID]
	if !ok {
		return nil, apperrors.NotFound("hospital", nil)
	}
	return client, nil
}

type auditRecorder struct {
	entries []*model.AuditLogEntry
}

func (r *auditRecorder) Create(_ context.Context, entry *model.AuditLogEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *auditRecorder) List(_ context.Context, _ *model.AuditFilters) ([]*model.AuditLogEntry, error) {
	return r.entries, nil
}

func (r *auditRecorder) Count(_ context.Context, _ *model.AuditFilters) (int64, error) {
	return int64(len(r.entries)), nil
}

type fakeOutbox struct{}

func (fakeOutbox) Create(_ context.Context, _ *model.AuditOutboxEvent) error { return nil }
func (fakeOutbox) GetPendingWithLock(_ context.Context, _ int) ([]*model.AuditOutboxEvent, error) {
	return nil, nil
}
func (fakeOutbox) MarkPublished(_ context.Context, _ uuid.UUID) error { return nil }
func (fakeOutbox) MarkFailed(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (fakeOutbox) CountPending(_ context.Context) (int64, error) { return 0, nil }
func (fakeOutbox) DeletePublishedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type noopBroker struct{}

func (noopBroker) Publish(_ context.Context, _ string, _ interface{}) error { return nil }
func (noopBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}
func (noopBroker) Close() error { return nil }

func newTestService(idx *fakeIndexRepo, reg *fakeRegistry, rec *auditRecorder) *record.Service {
	auditor := audit.NewService(rec, fakeOutbox{}, noopBroker{}, security.NewNoopEncryptor(), testMetrics, zerolog.Nop(), audit.Config{})
	return record.NewService(idx, reg, auditor, zerolog.Nop())
}

func doctorAt(hospitalID string) *model.Principal {
	return &model.Principal{ID: "doc-1", Type: model.PrincipalDoctor, HospitalID: hospitalID}
}

func createReq(identityNumber string) *model.CreateRecordRequest {
	return &model.CreateRecordRequest{
		IdentityNumber: identityNumber,
		DoctorID:       "doc-1",
		Type:           "consultation",
		Title:          "Initial consultation",
	}
}

func TestCreateWritesRecordAndIndex(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string][]string{}}
	reg := &fakeRegistry{clients: map[string]*fakeClient{"h-a": {id: "h-a"}}}
	rec := &auditRecorder{}
	svc := newTestService(idx, reg, rec)

	recordID, err := svc.Create(context.Background(), doctorAt("h-a"), "h-a", createReq("ID-1"))
	require.NoError(t, err)
	assert.Equal(t, "rec-001", recordID)
	assert.Equal(t, []string{"h-a"}, idx.entries["ID-1"])

	require.Len(t, rec.entries, 1)
	assert.Equal(t, model.AuditActionCreate, rec.entries[0].Action)
	assert.True(t, rec.entries[0].Success)
}

func TestCreateIndexAddIsIdempotent(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string][]string{}}
	reg := &fakeRegistry{clients: map[string]*fakeClient{"h-a": {id: "h-a"}}}
	svc := newTestService(idx, reg, &auditRecorder{})
	ctx := context.Background()

	_, err := svc.Create(ctx, doctorAt("h-a"), "h-a", createReq("ID-1"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, doctorAt("h-a"), "h-a", createReq("ID-1"))
	require.NoError(t, err)

	// Second record for the same pair leaves the hospital listed once.
	assert.Equal(t, []string{"h-a"}, idx.entries["ID-1"])
	assert.Equal(t, 2, reg.clients["h-a"].created)
}

func TestCreateScopedToOwnHospital(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string][]string{}}
	reg := &fakeRegistry{clients: map[string]*fakeClient{"h-a": {id: "h-a"}}}
	rec := &auditRecorder{}
	svc := newTestService(idx, reg, rec)
	ctx := context.Background()

	// Doctor from another hospital.
	_, err := svc.Create(ctx, doctorAt("h-b"), "h-a", createReq("ID-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	// Non-doctor principals, even at the right hospital.
	admin := &model.Principal{ID: "adm-1", Type: model.PrincipalHospitalAdmin, HospitalID: "h-a"}
	_, err = svc.Create(ctx, admin, "h-a", createReq("ID-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	assert.Zero(t, reg.clients["h-a"].created)
	require.Len(t, rec.entries, 2)
	for _, e := range rec.entries {
		assert.False(t, e.Success)
	}
}

func TestCreateNodeRejectionIsAudited(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string][]string{}}
	reg := &fakeRegistry{clients: map[string]*fakeClient{
		"h-a": {id: "h-a", createErr: errors.New("node validation failed")},
	}}
	rec := &auditRecorder{}
	svc := newTestService(idx, reg, rec)

	_, err := svc.Create(context.Background(), doctorAt("h-a"), "h-a", createReq("ID-1"))
	require.Error(t, err)
	assert.Zero(t, idx.adds)

	require.Len(t, rec.entries, 1)
	assert.False(t, rec.entries[0].Success)
}

func TestCreateIndexFailureEscalates(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string][]string{}, addErr: errors.New("index store down")}
	reg := &fakeRegistry{clients: map[string]*fakeClient{"h-a": {id: "h-a"}}}
	rec := &auditRecorder{}
	svc := newTestService(idx, reg, rec)

	_, err := svc.Create(context.Background(), doctorAt("h-a"), "h-a", createReq("ID-1"))
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrUnavailable, appErr.Code)

	// The add is retried before giving up.
	assert.Equal(t, 3, idx.adds)
	require.Len(t, rec.entries, 1)
	assert.False(t, rec.entries[0].Success)
}

func TestCreateUnknownHospital(t *testing.T) {
	svc := newTestService(&fakeIndexRepo{entries: map[string][]string{}}, &fakeRegistry{}, &auditRecorder{})

	_, err := svc.Create(context.Background(), doctorAt("h-gone"), "h-gone", createReq("ID-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
