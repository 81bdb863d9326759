// Package hospital provides the uniform client abstraction over
// independently-deployed hospital node backends. Transport failures never
// escape this package raw: every error is classified into the per-hospital
// status vocabulary before the coordinator sees it.
package hospital

import (
	"context"
	"errors"

	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/pkg/circuitbreaker"
)

// Client is the per-hospital interface. Each instance is scoped to exactly
// one hospital; there are no cross-hospital calls inside this abstraction.
type Client interface {
	HospitalID() string
	// FetchRecords is a pure read: all records the node holds for the
	// identity, in the node's own return order.
	FetchRecords(ctx context.Context, identityNumber string) ([]*model.MedicalRecord, error)
	// FetchSummary returns the node's demographic and safety-critical
	// fields for the identity.
	FetchSummary(ctx context.Context, identityNumber string) (*NodeSummary, error)
	// CreateRecord is the only write path, invoked solely by the node's
	// own doctors. Index maintenance is the caller's responsibility.
	CreateRecord(ctx context.Context, req *model.CreateRecordRequest) (string, error)
}

// NodeSummary is a hospital node's contribution to the merged patient
// summary and the emergency safety profile.
type NodeSummary struct {
	Demographics      model.Demographics `json:"demographics"`
	BloodType         string             `json:"blood_type,omitempty"`
	Allergies         []string           `json:"allergies,omitempty"`
	ChronicConditions []string           `json:"chronic_conditions,omitempty"`
	EmergencyContact  string             `json:"emergency_contact,omitempty"`
}

// CallError is a transport or node failure normalized into the tagged
// status vocabulary.
type CallError struct {
	Status model.HospitalQueryStatus
	Err    error
}

func (e *CallError) Error() string {
	return string(e.Status) + ": " + e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Classify maps an error from a client call onto a HospitalQueryStatus.
// Unknown errors are treated as node errors.
func Classify(err error) model.HospitalQueryStatus {
	if err == nil {
		return model.HospitalStatusOK
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Status
	}
	var open *circuitbreaker.ErrOpen
	if errors.As(err, &open) {
		// Skipped call on a tripped breaker: the node has been failing.
		return model.HospitalStatusUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.HospitalStatusTimeout
	}
	return model.HospitalStatusError
}
