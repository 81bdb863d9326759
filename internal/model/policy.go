package model

import "time"

// AccessPolicy is a patient-controlled block flag for one hospital.
// Absence of a row means "not blocked" (default-allow).
type AccessPolicy struct {
	IdentityNumber string    `json:"identity_number" db:"identity_number"`
	HospitalID     string    `json:"hospital_id" db:"hospital_id"`
	Blocked        bool      `json:"blocked" db:"blocked"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
