package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medinet/federation-api/internal/model"
)

// IndexRepository is the central identity index: identity number to the
// set of hospitals holding records. Entries only grow; AddHospital must be
// idempotent per (identity, hospital) pair.
type IndexRepository interface {
	Get(ctx context.Context, identityNumber string) (*model.IdentityIndexEntry, error)
	// AddHospital appends hospitalID to the identity's hospital set,
	// creating the entry on first use. Adding an already-present hospital
	// is a no-op, not an error.
	AddHospital(ctx context.Context, identityNumber, hospitalID string) error
}

// PolicyRepository stores patient-controlled per-hospital block flags.
// A missing row means not blocked.
type PolicyRepository interface {
	Get(ctx context.Context, identityNumber, hospitalID string) (*model.AccessPolicy, error)
	List(ctx context.Context, identityNumber string) ([]*model.AccessPolicy, error)
	Upsert(ctx context.Context, policy *model.AccessPolicy) error
}

// AuditRepository is append-only storage for access audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) error
	List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLogEntry, error)
	Count(ctx context.Context, filters *model.AuditFilters) (int64, error)
}

// AuditOutboxRepository parks audit entries whose synchronous append
// failed, for asynchronous retry by the worker.
type AuditOutboxRepository interface {
	Create(ctx context.Context, event *model.AuditOutboxEvent) error
	GetPendingWithLock(ctx context.Context, limit int) ([]*model.AuditOutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	CountPending(ctx context.Context) (int64, error)
	DeletePublishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// HospitalRepository is the directory of federated hospital nodes.
type HospitalRepository interface {
	Get(ctx context.Context, id string) (*model.Hospital, error)
	List(ctx context.Context) ([]*model.Hospital, error)
	Upsert(ctx context.Context, hospital *model.Hospital) error
}
