package federation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/model"
	apperrors "github.com/medinet/federation-api/pkg/errors"
)

func TestGetPatientSummaryMergesInIndexOrder(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string]*model.IdentityIndexEntry{
		"ID-1": indexEntry("ID-1", "h-a", "h-b"),
	}}
	reg := &fakeRegistry{
		clients: map[string]*fakeClient{
			"h-a": {id: "h-a", summary: &hospital.NodeSummary{
				Demographics: model.Demographics{Name: "Kim Andersen", Phone: ""},
			}},
			"h-b": {id: "h-b", summary: &hospital.NodeSummary{
				Demographics: model.Demographics{Name: "K. Andersen", Phone: "+4712345678", DateOfBirth: "1980-04-12"},
			}},
		},
		names: map[string]string{},
	}
	rec := &auditRecorder{}
	svc := newService(idx, &fakePolicy{}, reg, rec, time.Second)

	summary, err := svc.GetPatientSummary(context.Background(), "ID-1", doctor())
	require.NoError(t, err)

	// First non-empty value per field wins, in index order.
	assert.Equal(t, "Kim Andersen", summary.Demographics.Name)
	assert.Equal(t, "+4712345678", summary.Demographics.Phone)
	assert.Equal(t, "1980-04-12", summary.Demographics.DateOfBirth)
	assert.Equal(t, []string{"h-a", "h-b"}, summary.HospitalIDs)
	assert.NotEmpty(t, summary.LastUpdated)

	entries := rec.byAction(model.AuditActionView)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestGetPatientSummarySkipsBlockedHospitals(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string]*model.IdentityIndexEntry{
		"ID-1": indexEntry("ID-1", "h-a", "h-b"),
	}}
	reg := &fakeRegistry{
		clients: map[string]*fakeClient{
			"h-a": {id: "h-a", summary: &hospital.NodeSummary{
				Demographics: model.Demographics{Name: "Kim Andersen"},
			}},
			"h-b": {id: "h-b", summary: &hospital.NodeSummary{
				Demographics: model.Demographics{Phone: "+4712345678"},
			}},
		},
		names: map[string]string{},
	}
	pol := &fakePolicy{blocked: map[string]bool{"ID-1|h-b": true}}
	svc := newService(idx, pol, reg, &auditRecorder{}, time.Second)

	summary, err := svc.GetPatientSummary(context.Background(), "ID-1", doctor())
	require.NoError(t, err)

	assert.Equal(t, "Kim Andersen", summary.Demographics.Name)
	assert.Empty(t, summary.Demographics.Phone)
	assert.Zero(t, reg.clients["h-b"].callCount())

	// The hospital list still reflects the full index; only contents are
	// withheld.
	assert.Equal(t, []string{"h-a", "h-b"}, summary.HospitalIDs)
}

func TestGetPatientSummaryUnknownIdentity(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string]*model.IdentityIndexEntry{}}
	svc := newService(idx, &fakePolicy{}, &fakeRegistry{}, &auditRecorder{}, time.Second)

	_, err := svc.GetPatientSummary(context.Background(), "ID-unknown", doctor())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetPatientSummaryPatientScopedToSelf(t *testing.T) {
	idx := &fakeIndexRepo{entries: map[string]*model.IdentityIndexEntry{
		"ID-2": indexEntry("ID-2", "h-a"),
	}}
	rec := &auditRecorder{}
	svc := newService(idx, &fakePolicy{}, &fakeRegistry{}, rec, time.Second)

	patient := &model.Principal{ID: "ID-1", Type: model.PrincipalPatient}
	_, err := svc.GetPatientSummary(context.Background(), "ID-2", patient)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	entries := rec.byAction(model.AuditActionView)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}
