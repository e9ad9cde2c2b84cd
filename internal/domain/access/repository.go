package access

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the request only if no pending or approved request
	// exists for the same (doctor, patient) pair. Check and insert happen
	// atomically; a race between two concurrent creates yields
	// ErrRequestConflict for the loser.
	Create(ctx context.Context, r *AccessRequest) error

	GetByID(ctx context.Context, id uuid.UUID) (*AccessRequest, error)

	// FindApproved returns the approved request for the pair, or
	// ErrRequestNotFound.
	FindApproved(ctx context.Context, doctorID, patientID uuid.UUID) (*AccessRequest, error)

	// UpdateStatus persists a state transition previously applied to r.
	UpdateStatus(ctx context.Context, r *AccessRequest) error

	// ExpireDue transitions every approved request whose expiry instant is
	// at or before now to expired, returning how many rows changed.
	// Idempotent: rows already expired are not touched again.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessRequest, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AccessRequest, error)
}
