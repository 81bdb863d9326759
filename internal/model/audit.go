package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditLogEntry struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	Action          string        `json:"action" db:"action"`
	ActorID         string        `json:"actor_id" db:"actor_id"`
	ActorType       PrincipalType `json:"actor_type" db:"actor_type"`
	ActorHospitalID string        `json:"actor_hospital_id,omitempty" db:"actor_hospital_id"`
	TargetIdentity  string        `json:"target_identity,omitempty" db:"target_identity"`
	Detail          string        `json:"detail" db:"detail"`
	Success         bool          `json:"success" db:"success"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

const (
	AuditActionQuery           = "query"
	AuditActionView            = "view"
	AuditActionCreate          = "create"
	AuditActionEmergencyAccess = "emergency_access"
	AuditActionPolicyChange    = "policy_change"
	AuditActionLogin           = "login"
	AuditActionLogout          = "logout"
)

// AuditFilters narrows audit log queries. Zero values mean "no filter".
type AuditFilters struct {
	ActorID        string
	TargetIdentity string
	Action         string
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}

// AuditOutboxStatus tracks retry state for audit entries that could not be
// written synchronously.
type AuditOutboxStatus string

const (
	AuditOutboxPending   AuditOutboxStatus = "pending"
	AuditOutboxPublished AuditOutboxStatus = "published"
	AuditOutboxFailed    AuditOutboxStatus = "failed"
)

// AuditOutboxEvent is a durable envelope for an audit entry awaiting
// asynchronous retry. Entries land here when the non-strict audit policy
// is in effect and the synchronous append failed.
type AuditOutboxEvent struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	Payload     []byte            `json:"payload" db:"payload"`
	Status      AuditOutboxStatus `json:"status" db:"status"`
	RetryCount  int               `json:"retry_count" db:"retry_count"`
	LastError   *string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
}
