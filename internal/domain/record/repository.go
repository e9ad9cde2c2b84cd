package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new Record together with its version-1 Version, the
	// mirrored Commit, and the owning patient's aggregate counters in one
	// transaction.
	Create(ctx context.Context, r *Record, v *Version) error

	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// AppendVersion assigns v.VersionNo under a row lock on the parent
	// Record, writes the Version and its Commit, and advances the record and
	// patient counters atomically. The version chain stays gapless under
	// concurrent appends.
	AppendVersion(ctx context.Context, v *Version) error

	// ListVersions returns a record's versions newest first.
	ListVersions(ctx context.Context, recordID uuid.UUID) ([]*Version, error)

	GetVersion(ctx context.Context, recordID uuid.UUID, versionNo int) (*Version, error)

	// ListCommitsByPatient returns a patient's cross-record commit log,
	// newest first, bounded by limit.
	ListCommitsByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*Commit, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
}
