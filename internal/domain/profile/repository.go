package profile

import (
	"context"

	"github.com/google/uuid"
)

// DoctorDelta carries pure-delta counter updates. These are applied as
// atomic increments in the store, never read-modify-write at the
// application layer.
type DoctorDelta struct {
	TotalCases     int
	ActiveCases    int
	RecordsAdded   int
	RecordsUpdated int
}

type Repository interface {
	// EnsureDoctor returns the doctor's profile, creating an empty one on
	// first reference.
	EnsureDoctor(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error)

	GetDoctor(ctx context.Context, doctorID uuid.UUID) (*DoctorProfile, error)

	// ApplyDoctorDelta applies counter deltas atomically. ActiveCases is
	// floored at zero in the store.
	ApplyDoctorDelta(ctx context.Context, doctorID uuid.UUID, d DoctorDelta) error

	// SaveDoctor persists a read-modify-write update (rolling average,
	// accuracy score, activity map, endorsements). Callers must hold the
	// per-doctor serialization the stats service provides.
	SaveDoctor(ctx context.Context, p *DoctorProfile) error

	GetPatient(ctx context.Context, patientID uuid.UUID) (*PatientProfile, error)

	// AdjustActiveCollaborators atomically adds delta to the patient's
	// active collaborator count, flooring at zero.
	AdjustActiveCollaborators(ctx context.Context, patientID uuid.UUID, delta int) error
}
