package policy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/service/audit"
	"github.com/medinet/federation-api/internal/service/policy"
	apperrors "github.com/medinet/federation-api/pkg/errors"
	"github.com/medinet/federation-api/pkg/metrics"
	"github.com/medinet/federation-api/pkg/security"
)

var testMetrics = metrics.NewMetrics("test", "policy")

type fakePolicyRepo struct {
	policies map[string]*model.AccessPolicy
	getErr   error
	upserts  int
}

func policyKey(identityNumber, hospitalID string) string {
	return identityNumber + "|" + hospitalID
}

func (f *fakePolicyRepo) Get(_ context.Context, identityNumber, hospitalID string) (*model.AccessPolicy, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.policies[policyKey(identityNumber, hospitalID)], nil
}

func (f *fakePolicyRepo) List(_ context.Context, identityNumber string) ([]*model.AccessPolicy, error) {
	var out []*model.AccessPolicy
	for _, p := range f.policies {
		if p.IdentityNumber == identityNumber {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePolicyRepo) Upsert(_ context.Context, p *model.AccessPolicy) error {
	f.upserts++
	f.policies[policyKey(p.IdentityNumber, p.HospitalID)] = p
	return nil
}

type fakeHospitalRepo struct {
	hospitals map[string]*model.Hospital
}

func (f *fakeHospitalRepo) Get(_ context.Context, id string) (*model.Hospital, error) {
	h, ok := f.hospitals[id]
	if !ok {
		return nil, apperrors.NotFound("hospital", nil)
	}
	return h, nil
}

func (f *fakeHospitalRepo) List(_ context.Context) ([]*model.Hospital, error) {
	var out []*model.Hospital
	for _, h := range f.hospitals {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeHospitalRepo) Upsert(_ context.Context, h *model.Hospital) error {
	f.hospitals[h.ID] = h
	return nil
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

func newTestService(repo *fakePolicyRepo, hospitals *fakeHospitalRepo, rec *auditRecorder) *policy.Service {
	auditor := audit.NewService(rec, fakeOutbox{}, noopBroker{}, security.NewNoopEncryptor(), testMetrics, zerolog.Nop(), audit.Config{})
	return policy.NewService(repo, hospitals, auditor, 0)
}

func owner(identityNumber string) *model.Principal {
	return &model.Principal{ID: identityNumber, Type: model.PrincipalPatient}
}

func TestIsBlockedDefaultsToAllow(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{}}
	svc := newTestService(repo, &fakeHospitalRepo{}, &auditRecorder{})

	blocked, err := svc.IsBlocked(context.Background(), "ID-1", "h-a")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestIsBlockedCachesResult(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{
		policyKey("ID-1", "h-a"): {IdentityNumber: "ID-1", HospitalID: "h-a", Blocked: true},
	}}
	svc := newTestService(repo, &fakeHospitalRepo{}, &auditRecorder{})

	blocked, err := svc.IsBlocked(context.Background(), "ID-1", "h-a")
	require.NoError(t, err)
	assert.True(t, blocked)

	// A failing store is masked while the cache holds the answer.
	repo.getErr = errors.New("store down")
	blocked, err = svc.IsBlocked(context.Background(), "ID-1", "h-a")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestIsBlockedSurfacesStoreErrors(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{}, getErr: errors.New("store down")}
	svc := newTestService(repo, &fakeHospitalRepo{}, &auditRecorder{})

	_, err := svc.IsBlocked(context.Background(), "ID-1", "h-a")
	require.Error(t, err)
}

func TestSetBlockedIsSelfServiceOnly(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{}}
	hospitals := &fakeHospitalRepo{hospitals: map[string]*model.Hospital{
		"h-a": {ID: "h-a", Name: "Alpha General"},
	}}
	rec := &auditRecorder{}
	svc := newTestService(repo, hospitals, rec)

	// Another patient.
	err := svc.SetBlocked(context.Background(), owner("ID-2"), "ID-1", "h-a", true)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	// A doctor.
	doc := &model.Principal{ID: "doc-1", Type: model.PrincipalDoctor, HospitalID: "h-a"}
	err = svc.SetBlocked(context.Background(), doc, "ID-1", "h-a", true)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	assert.Zero(t, repo.upserts)
	require.Len(t, rec.entries, 2)
	for _, e := range rec.entries {
		assert.Equal(t, model.AuditActionPolicyChange, e.Action)
		assert.False(t, e.Success)
	}
}

func TestSetBlockedRejectsUnknownHospital(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{}}
	hospitals := &fakeHospitalRepo{hospitals: map[string]*model.Hospital{}}
	svc := newTestService(repo, hospitals, &auditRecorder{})

	err := svc.SetBlocked(context.Background(), owner("ID-1"), "ID-1", "h-typo", true)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Zero(t, repo.upserts)
}

func TestSetBlockedRoundTrip(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{}}
	hospitals := &fakeHospitalRepo{hospitals: map[string]*model.Hospital{
		"h-a": {ID: "h-a", Name: "Alpha General"},
	}}
	rec := &auditRecorder{}
	svc := newTestService(repo, hospitals, rec)
	ctx := context.Background()

	require.NoError(t, svc.SetBlocked(ctx, owner("ID-1"), "ID-1", "h-a", true))
	blocked, err := svc.IsBlocked(ctx, "ID-1", "h-a")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Unblocking must invalidate the cached answer immediately.
	require.NoError(t, svc.SetBlocked(ctx, owner("ID-1"), "ID-1", "h-a", false))
	blocked, err = svc.IsBlocked(ctx, "ID-1", "h-a")
	require.NoError(t, err)
	assert.False(t, blocked)

	require.Len(t, rec.entries, 2)
	assert.True(t, rec.entries[0].Success)
	assert.True(t, rec.entries[1].Success)
}

func TestListIsSelfServiceOnly(t *testing.T) {
	repo := &fakePolicyRepo{policies: map[string]*model.AccessPolicy{
		policyKey("ID-1", "h-a"): {IdentityNumber: "ID-1", HospitalID: "h-a", Blocked: true},
	}}
	svc := newTestService(repo, &fakeHospitalRepo{}, &auditRecorder{})

	_, err := svc.List(context.Background(), owner("ID-2"), "ID-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	policies, err := svc.List(context.Background(), owner("ID-1"), "ID-1")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.True(t, policies[0].Blocked)
}
