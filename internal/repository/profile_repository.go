package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/careledger/careledger/internal/domain/profile"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) EnsureDoctor(ctx context.Context, doctorID uuid.UUID) (*profile.DoctorProfile, error) {
	p := profile.DoctorProfile{
		DoctorID:     doctorID,
		Activity:     map[string]int{},
		Endorsements: map[string]int{},
	}
	err := r.db.WithContext(ctx).
		Where(profile.DoctorProfile{DoctorID: doctorID}).
		FirstOrCreate(&p).Error
	if err != nil {
		return nil, fmt.Errorf("ensuring doctor profile: %w", err)
	}
	if p.Activity == nil {
		p.Activity = map[string]int{}
	}
	if p.Endorsements == nil {
		p.Endorsements = map[string]int{}
	}
	return &p, nil
}

func (r *ProfileRepository) GetDoctor(ctx context.Context, doctorID uuid.UUID) (*profile.DoctorProfile, error) {
	var p profile.DoctorProfile
	err := r.db.WithContext(ctx).First(&p, "doctor_id = ?", doctorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, profile.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepository) ApplyDoctorDelta(ctx context.Context, doctorID uuid.UUID, d profile.DoctorDelta) error {
	updates := map[string]any{}
	if d.TotalCases != 0 {
		updates["total_cases"] = gorm.Expr("total_cases + ?", d.TotalCases)
	}
	if d.ActiveCases != 0 {
		updates["active_cases"] = gorm.Expr("GREATEST(active_cases + ?, 0)", d.ActiveCases)
	}
	if d.RecordsAdded != 0 {
		updates["records_added"] = gorm.Expr("records_added + ?", d.RecordsAdded)
	}
	if d.RecordsUpdated != 0 {
		updates["records_updated"] = gorm.Expr("records_updated + ?", d.RecordsUpdated)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&profile.DoctorProfile{}).
		Where("doctor_id = ?", doctorID).
		Updates(updates).Error
}

func (r *ProfileRepository) SaveDoctor(ctx context.Context, p *profile.DoctorProfile) error {
	return r.db.WithContext(ctx).
		Model(p).
		Select("avg_response_hours", "accuracy_score", "activity", "endorsements", "condition_tags").
		Updates(p).Error
}

func (r *ProfileRepository) GetPatient(ctx context.Context, patientID uuid.UUID) (*profile.PatientProfile, error) {
	p := profile.PatientProfile{PatientID: patientID}
	err := r.db.WithContext(ctx).
		Where(profile.PatientProfile{PatientID: patientID}).
		FirstOrCreate(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepository) AdjustActiveCollaborators(ctx context.Context, patientID uuid.UUID, delta int) error {
	p := profile.PatientProfile{PatientID: patientID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return fmt.Errorf("ensuring patient profile: %w", err)
	}
	return r.db.WithContext(ctx).Model(&profile.PatientProfile{}).
		Where("patient_id = ?", patientID).
		Update("active_collaborators", gorm.Expr("GREATEST(active_collaborators + ?, 0)", delta)).Error
}
