package model

// PrincipalType classifies the authenticated actor.
type PrincipalType string

const (
	PrincipalPatient       PrincipalType = "patient"
	PrincipalDoctor        PrincipalType = "doctor"
	PrincipalHospitalAdmin PrincipalType = "hospital_admin"
	PrincipalCentralAdmin  PrincipalType = "central_admin"
)

// Principal is the authenticated actor attached to every request by the
// auth middleware. Credential verification happens upstream; the
// coordinator trusts these fields.
type Principal struct {
	ID         string        `json:"id"`
	Type       PrincipalType `json:"type"`
	HospitalID string        `json:"hospital_id,omitempty"`
}

// CanQueryAnyIdentity reports whether the principal has network-wide read
// access. Patients are restricted to their own identity number.
func (p *Principal) CanQueryAnyIdentity() bool {
	return p.Type != PrincipalPatient
}

// IsSelf reports whether the principal is the owner of the given identity
// number. Only meaningful for patient principals.
func (p *Principal) IsSelf(identityNumber string) bool {
	return p.Type == PrincipalPatient && p.ID == identityNumber
}
