package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/careledger/careledger/internal/domain/profile"
	"github.com/careledger/careledger/internal/domain/record"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, rec *record.Record, v *record.Version) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec.CurrentVersionNo = 1
		rec.VersionCount = 1
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("creating record: %w", err)
		}

		v.RecordID = rec.ID
		v.VersionNo = 1
		v.Change = record.ChangeInitialUpload
		if err := tx.Create(v).Error; err != nil {
			return fmt.Errorf("creating initial version: %w", err)
		}

		if err := tx.Model(rec).Update("current_version_id", v.ID).Error; err != nil {
			return fmt.Errorf("setting current version: %w", err)
		}

		if err := tx.Create(commitFor(rec, v)).Error; err != nil {
			return fmt.Errorf("creating commit: %w", err)
		}

		return bumpPatientCounters(tx, rec.PatientID, 1, 1)
	})
}

func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	var rec record.Record
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, record.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecordRepository) AppendVersion(ctx context.Context, v *record.Version) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock serializes version-number assignment per record; two
		// concurrent appends cannot observe the same counter value.
		var rec record.Record
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "id = ?", v.RecordID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return record.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		if rec.Archived {
			return record.ErrRecordArchived
		}

		v.VersionNo = rec.CurrentVersionNo + 1
		v.Change = record.ChangeUpdate
		if err := tx.Create(v).Error; err != nil {
			return fmt.Errorf("creating version: %w", err)
		}

		updates := map[string]any{
			"current_version_no": v.VersionNo,
			"current_version_id": v.ID,
			"version_count":      gorm.Expr("version_count + 1"),
		}
		if err := tx.Model(&rec).Updates(updates).Error; err != nil {
			return fmt.Errorf("advancing record head: %w", err)
		}

		if err := tx.Create(commitFor(&rec, v)).Error; err != nil {
			return fmt.Errorf("creating commit: %w", err)
		}

		return bumpPatientCounters(tx, rec.PatientID, 0, 1)
	})

	// The unique (record_id, version_no) index is the backstop if the row
	// lock is ever bypassed (e.g. read-committed replicas).
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return record.ErrVersionConflict
	}
	return err
}

func (r *RecordRepository) ListVersions(ctx context.Context, recordID uuid.UUID) ([]*record.Version, error) {
	var versions []*record.Version
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("version_no DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *RecordRepository) GetVersion(ctx context.Context, recordID uuid.UUID, versionNo int) (*record.Version, error) {
	var v record.Version
	err := r.db.WithContext(ctx).
		First(&v, "record_id = ? AND version_no = ?", recordID, versionNo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, record.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *RecordRepository) ListCommitsByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*record.Commit, error) {
	var commits []*record.Commit
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&commits).Error
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func (r *RecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*record.Record, error) {
	var records []*record.Record
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("updated_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func commitFor(rec *record.Record, v *record.Version) *record.Commit {
	return &record.Commit{
		PatientID:   rec.PatientID,
		RecordID:    rec.ID,
		VersionID:   v.ID,
		VersionNo:   v.VersionNo,
		RecordTitle: rec.Title,
		RecordType:  rec.Type,
		AuthorID:    v.AuthorID,
		AuthorRole:  v.AuthorRole,
		Message:     v.Message,
		Change:      v.Change,
	}
}

// bumpPatientCounters advances the owning patient's aggregate counters
// inside the caller's transaction, creating the profile row on first use.
func bumpPatientCounters(tx *gorm.DB, patientID uuid.UUID, records, versions int) error {
	p := profile.PatientProfile{PatientID: patientID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return fmt.Errorf("ensuring patient profile: %w", err)
	}
	return tx.Model(&profile.PatientProfile{}).
		Where("patient_id = ?", patientID).
		Updates(map[string]any{
			"total_records":  gorm.Expr("total_records + ?", records),
			"total_versions": gorm.Expr("total_versions + ?", versions),
		}).Error
}
