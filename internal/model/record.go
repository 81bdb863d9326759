package model

import (
	"encoding/json"
	"time"
)

// MedicalRecord is the normalized shape of a record returned by a hospital
// node. Hospital backends are heterogeneous; anything beyond the common
// fields stays opaque in Payload.
type MedicalRecord struct {
	ID             string          `json:"id"`
	IdentityNumber string          `json:"identity_number"`
	HospitalID     string          `json:"hospital_id"`
	DoctorID       string          `json:"doctor_id,omitempty"`
	Type           string          `json:"type,omitempty"`
	Title          string          `json:"title,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateRecordRequest is the sole cross-boundary write. It is scoped to a
// single hospital and triggers the index-maintenance side effect.
type CreateRecordRequest struct {
	IdentityNumber string          `json:"identity_number" binding:"required"`
	DoctorID       string          `json:"doctor_id" binding:"required"`
	Type           string          `json:"type"`
	Title          string          `json:"title"`
	Payload        json.RawMessage `json:"payload"`
}
