package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careledger/careledger/internal/domain/access"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccessRepository struct {
	db *gorm.DB
}

func NewAccessRepository(db *gorm.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

func (r *AccessRepository) Create(ctx context.Context, req *access.AccessRequest) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&access.AccessRequest{}).
			Where("doctor_id = ? AND patient_id = ? AND status IN ?",
				req.DoctorID, req.PatientID,
				[]access.Status{access.StatusPending, access.StatusApproved}).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("checking for active request: %w", err)
		}
		if count > 0 {
			return access.ErrRequestConflict
		}

		req.Status = access.StatusPending
		return tx.Create(req).Error
	})

	// A race between two concurrent creates slips past the in-transaction
	// check; the partial unique index on (doctor_id, patient_id) for
	// non-terminal statuses rejects the loser.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return access.ErrRequestConflict
	}
	return err
}

func (r *AccessRepository) GetByID(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
	var req access.AccessRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, access.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *AccessRepository) FindApproved(ctx context.Context, doctorID, patientID uuid.UUID) (*access.AccessRequest, error) {
	var req access.AccessRequest
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND patient_id = ? AND status = ?",
			doctorID, patientID, access.StatusApproved).
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, access.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *AccessRepository) UpdateStatus(ctx context.Context, req *access.AccessRequest) error {
	return r.db.WithContext(ctx).Model(req).
		Select("status", "expired", "responded_at", "revoked_at", "expires_at", "responder_note").
		Updates(req).Error
}

func (r *AccessRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&access.AccessRequest{}).
		Where("status = ? AND expires_at <= ?", access.StatusApproved, now).
		Updates(map[string]any{
			"status":  access.StatusExpired,
			"expired": true,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *AccessRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*access.AccessRequest, error) {
	var reqs []*access.AccessRequest
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *AccessRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*access.AccessRequest, error) {
	var reqs []*access.AccessRequest
	err := r.db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}
