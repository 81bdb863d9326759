package model

import (
	"time"

	"github.com/lib/pq"
)

// IdentityIndexEntry maps an identity number to the set of hospitals known
// to hold at least one record for that person. The hospital set only ever
// grows: a hospital is added on the first record it creates for the
// identity and is never removed, so the index reflects "a record existed
// here at some point".
type IdentityIndexEntry struct {
	IdentityNumber string         `json:"identity_number" db:"identity_number"`
	HospitalIDs    pq.StringArray `json:"hospital_ids" db:"hospital_ids"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Hospitals returns the hospital IDs in index insertion order. The order is
// stable across reads and is what fixes hospital ordering in aggregated
// query responses.
func (e *IdentityIndexEntry) Hospitals() []string {
	return []string(e.HospitalIDs)
}
