package model

// HospitalQueryStatus tags the outcome of one hospital's contribution to a
// federated query. Every candidate hospital from the index appears in the
// response with exactly one of these.
type HospitalQueryStatus string

const (
	HospitalStatusOK          HospitalQueryStatus = "ok"
	HospitalStatusBlocked     HospitalQueryStatus = "blocked"
	HospitalStatusUnreachable HospitalQueryStatus = "unreachable"
	HospitalStatusTimeout     HospitalQueryStatus = "timeout"
	HospitalStatusError       HospitalQueryStatus = "error"
)

// HospitalQueryResult is the per-hospital slice of an aggregated response.
// Transient: produced on every query, never persisted.
type HospitalQueryResult struct {
	HospitalID   string              `json:"hospital_id"`
	HospitalName string              `json:"hospital_name"`
	Status       HospitalQueryStatus `json:"status"`
	Records      []*MedicalRecord    `json:"records"`
	ElapsedMs    int64               `json:"elapsed_ms"`
	Error        string              `json:"error,omitempty"`
}

// QueryStep is one entry of the coordinator's step trace, surfaced for the
// UI timeline view.
type QueryStep struct {
	Name      string `json:"name"`
	Detail    string `json:"detail"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// AggregatedQueryResponse is the unified view over all hospitals holding
// records for an identity. Hospital order follows index insertion order,
// not response arrival order.
type AggregatedQueryResponse struct {
	IdentityNumber string                 `json:"identity_number"`
	Steps          []QueryStep            `json:"steps"`
	Hospitals      []*HospitalQueryResult `json:"hospitals"`
	TotalRecords   int                    `json:"total_records"`
	ElapsedMs      int64                  `json:"elapsed_ms"`
}

// PatientSummary is the thin read: merged demographics plus where records
// live, without record contents.
type PatientSummary struct {
	IdentityNumber string       `json:"identity_number"`
	Demographics   Demographics `json:"demographics"`
	HospitalIDs    []string     `json:"hospital_ids"`
	LastUpdated    string       `json:"last_updated"`
}

// Demographics is the merged profile across hospitals. First non-empty
// value per field wins, in index order.
type Demographics struct {
	Name        string `json:"name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
}

// SafetyProfile is the minimal break-glass field set. Nothing beyond these
// fields may ever be returned on the emergency path.
type SafetyProfile struct {
	IdentityNumber    string   `json:"identity_number"`
	Name              string   `json:"name,omitempty"`
	BloodType         string   `json:"blood_type,omitempty"`
	Allergies         []string `json:"allergies,omitempty"`
	ChronicConditions []string `json:"chronic_conditions,omitempty"`
	EmergencyContact  string   `json:"emergency_contact,omitempty"`
	Found             bool     `json:"found"`
	SourceHospitals   []string `json:"source_hospitals,omitempty"`
}
