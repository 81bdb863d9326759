package hospital_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/internal/model"
)

func newNode(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *hospital.HTTPClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := hospital.NewHTTPClient(
		&model.Hospital{ID: "h-a", Name: "Alpha General", BaseURL: server.URL},
		hospital.HTTPClientConfig{Timeout: time.Second},
		zerolog.Nop(),
	)
	return server, client
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	payload, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    json.RawMessage(payload),
	})
}

func TestFetchRecordsStampsHospitalID(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/records/ID-1", r.URL.Path)
		writeEnvelope(w, []*model.MedicalRecord{
			{ID: "r1", IdentityNumber: "ID-1", HospitalID: "spoofed"},
			{ID: "r2", IdentityNumber: "ID-1"},
		})
	})

	records, err := client.FetchRecords(context.Background(), "ID-1")
	require.NoError(t, err)

	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "h-a", rec.HospitalID)
	}
}

func TestFetchRecordsNodeErrorEnvelope(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "patient registry offline",
		})
	})

	_, err := client.FetchRecords(context.Background(), "ID-1")
	require.Error(t, err)
	assert.Equal(t, model.HospitalStatusError, hospital.Classify(err))
	assert.Contains(t, err.Error(), "patient registry offline")
}

func TestFetchRecordsServerError(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FetchRecords(context.Background(), "ID-1")
	require.Error(t, err)
	assert.Equal(t, model.HospitalStatusError, hospital.Classify(err))
}

func TestFetchRecordsMalformedPayload(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    "not a record list",
		})
	})

	_, err := client.FetchRecords(context.Background(), "ID-1")
	require.Error(t, err)
	assert.Equal(t, model.HospitalStatusError, hospital.Classify(err))
}

func TestSlowNodeClassifiedAsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeEnvelope(w, []*model.MedicalRecord{})
	}))
	t.Cleanup(server.Close)

	client := hospital.NewHTTPClient(
		&model.Hospital{ID: "h-a", BaseURL: server.URL},
		hospital.HTTPClientConfig{Timeout: 50 * time.Millisecond},
		zerolog.Nop(),
	)

	_, err := client.FetchRecords(context.Background(), "ID-1")
	require.Error(t, err)
	assert.Equal(t, model.HospitalStatusTimeout, hospital.Classify(err))
}

func TestDownedNodeClassifiedAsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, []*model.MedicalRecord{})
	}))
	server.Close()

	client := hospital.NewHTTPClient(
		&model.Hospital{ID: "h-a", BaseURL: server.URL},
		hospital.HTTPClientConfig{Timeout: time.Second},
		zerolog.Nop(),
	)

	_, err := client.FetchRecords(context.Background(), "ID-1")
	require.Error(t, err)
	assert.Equal(t, model.HospitalStatusUnreachable, hospital.Classify(err))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.FetchRecords(ctx, "ID-1")
		require.Error(t, err)
	}

	// Beyond the failure threshold the call is refused without touching
	// the node, and reads as unreachable to the coordinator.
	_, err := client.FetchRecords(ctx, "ID-1")
	require.Error(t, err)
	assert.Equal(t, model.HospitalStatusUnreachable, hospital.Classify(err))
}

func TestFetchSummary(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients/ID-1/summary", r.URL.Path)
		writeEnvelope(w, &hospital.NodeSummary{
			Demographics: model.Demographics{Name: "Kim Andersen"},
			BloodType:    "A+",
			Allergies:    []string{"penicillin"},
		})
	})

	summary, err := client.FetchSummary(context.Background(), "ID-1")
	require.NoError(t, err)
	assert.Equal(t, "Kim Andersen", summary.Demographics.Name)
	assert.Equal(t, "A+", summary.BloodType)
}

func TestCreateRecord(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/records", r.URL.Path)

		var req model.CreateRecordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ID-1", req.IdentityNumber)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		writeEnvelope(w, map[string]string{"record_id": "rec-42"})
	})

	recordID, err := client.CreateRecord(context.Background(), &model.CreateRecordRequest{
		IdentityNumber: "ID-1",
		DoctorID:       "doc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-42", recordID)
}

func TestCreateRecordRejectsEmptyID(t *testing.T) {
	_, client := newNode(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, map[string]string{})
	})

	_, err := client.CreateRecord(context.Background(), &model.CreateRecordRequest{
		IdentityNumber: "ID-1",
		DoctorID:       "doc-1",
	})
	require.Error(t, err)
}
