package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List and CountForOwner results. Zero values mean
// "no constraint".
type ListFilter struct {
	Status Status
	Type   Type
	Limit  int
	Offset int
}

// Store persists task records. Implementations must guarantee that a
// terminal status is never overwritten: UpdateStatus reports whether
// the transition was applied so a late writer can observe that it lost.
type Store interface {
	// Create inserts a new record in pending status.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID, returning store.ErrTaskNotFound
	// when no row exists.
	Get(ctx context.Context, taskID uuid.UUID) (*Record, error)

	// GetForOwner retrieves a record only if it belongs to ownerID.
	// A record owned by someone else is reported as not found.
	GetForOwner(ctx context.Context, taskID, ownerID uuid.UUID) (*Record, error)

	// UpdateStatus transitions a record's status. The transition to
	// running sets started_at on first application; a transition to a
	// terminal status sets completed_at and records result or errMsg.
	// It returns false with a nil error when the record was already in
	// a state the transition is not legal from.
	UpdateStatus(ctx context.Context, taskID uuid.UUID, status Status, result json.RawMessage, errMsg string) (bool, error)

	// List returns an owner's records, newest first.
	List(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]*Record, error)

	// CountForOwner returns how many records match the filter.
	CountForOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) (int, error)

	// Delete removes a record regardless of status, returning
	// store.ErrTaskNotFound when no row exists.
	Delete(ctx context.Context, taskID uuid.UUID) error

	// Sweep deletes terminal records whose completed_at is older than
	// the retention window and returns how many were removed.
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)

	// FailOverdue marks running records started before the deadline as
	// failed. It backstops workers that died without writing a
	// terminal status.
	FailOverdue(ctx context.Context, startedBefore time.Time, errMsg string) (int64, error)
}
