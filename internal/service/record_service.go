package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/internal/domain/access"
	"github.com/careledger/careledger/internal/domain/record"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authorizer guards record reads and writes; implemented by AccessService.
type Authorizer interface {
	Authorize(ctx context.Context, doctorID, patientID uuid.UUID, recordType string, mode access.Mode) error
}

// VersionAggregator is the slice of the stats service the record layer feeds.
type VersionAggregator interface {
	OnVersionCommitted(ctx context.Context, doctorID uuid.UUID, isUpdate bool) error
}

// BlobStore persists version content and issues time-limited read handles.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	TemporaryReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type RecordService struct {
	repo     record.Repository
	enforcer Authorizer
	stats    VersionAggregator
	blobs    BlobStore
	auditSvc *AuditService
	notify   *NotifyService
	log      *zap.Logger
}

func NewRecordService(repo record.Repository, enforcer Authorizer, stats VersionAggregator, blobs BlobStore, auditSvc *AuditService, notify *NotifyService, log *zap.Logger) *RecordService {
	return &RecordService{
		repo:     repo,
		enforcer: enforcer,
		stats:    stats,
		blobs:    blobs,
		auditSvc: auditSvc,
		notify:   notify,
		log:      log,
	}
}

const (
	defaultCommitLogLimit = 50
	maxCommitLogLimit     = 200
)

// CreateRecord opens a new document lineage for a patient and commits
// version 1. Patients create records for themselves; a doctor needs an
// approved read_write grant covering the record type.
func (s *RecordService) CreateRecord(ctx context.Context, cmd *record.CreateRecordCommand, caller *domain.Identity, ip string) (*record.Record, *record.Version, error) {
	if err := s.authorizeWrite(ctx, caller, cmd.PatientID, string(cmd.Type)); err != nil {
		return nil, nil, err
	}
	if err := validateCreateRecord(cmd); err != nil {
		return nil, nil, err
	}

	key := storageKey(cmd.PatientID, 1)
	if err := s.blobs.Put(ctx, key, cmd.Content, cmd.MediaType); err != nil {
		return nil, nil, fmt.Errorf("storing content: %w", err)
	}

	rec := &record.Record{
		PatientID: cmd.PatientID,
		Title:     strings.TrimSpace(cmd.Title),
		Type:      cmd.Type,
		Tags:      cmd.Tags,
		CreatedBy: caller.ID,
	}
	v := &record.Version{
		AuthorID:   caller.ID,
		AuthorRole: caller.Role,
		Message:    strings.TrimSpace(cmd.Message),
		StorageKey: key,
		FileName:   cmd.FileName,
		FileSize:   int64(len(cmd.Content)),
		MediaType:  cmd.MediaType,
	}

	if err := s.repo.Create(ctx, rec, v); err != nil {
		return nil, nil, fmt.Errorf("creating record: %w", err)
	}

	s.afterCommit(ctx, caller, rec, v, ip)

	s.log.Info("record created",
		zap.String("record_id", rec.ID.String()),
		zap.String("patient_id", rec.PatientID.String()),
	)

	return rec, v, nil
}

// AppendVersion commits the next version of an existing record. Version
// numbers stay gapless under concurrent appends; a racing loser surfaces
// record.ErrVersionConflict and should retry with fresh state.
func (s *RecordService) AppendVersion(ctx context.Context, cmd *record.AppendVersionCommand, caller *domain.Identity, ip string) (*record.Version, error) {
	rec, err := s.repo.GetByID(ctx, cmd.RecordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ctx, caller, rec.PatientID, string(rec.Type)); err != nil {
		return nil, err
	}
	if err := validateAppendVersion(cmd); err != nil {
		return nil, err
	}

	key := storageKey(rec.PatientID, rec.CurrentVersionNo+1)
	if err := s.blobs.Put(ctx, key, cmd.Content, cmd.MediaType); err != nil {
		return nil, fmt.Errorf("storing content: %w", err)
	}

	v := &record.Version{
		RecordID:   rec.ID,
		AuthorID:   caller.ID,
		AuthorRole: caller.Role,
		Message:    strings.TrimSpace(cmd.Message),
		StorageKey: key,
		FileName:   cmd.FileName,
		FileSize:   int64(len(cmd.Content)),
		MediaType:  cmd.MediaType,
	}

	if err := s.repo.AppendVersion(ctx, v); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, caller, rec, v, ip)

	return v, nil
}

// ListVersions returns a record's chain newest first.
func (s *RecordService) ListVersions(ctx context.Context, recordID uuid.UUID, caller *domain.Identity) ([]*record.Version, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, caller, rec.PatientID, string(rec.Type)); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, recordID)
}

// GetCommitLog lists a patient's cross-record history, newest first. A
// doctor needs a wildcard-scoped grant, since the log spans every record
// type.
func (s *RecordService) GetCommitLog(ctx context.Context, patientID uuid.UUID, limit int, caller *domain.Identity) ([]*record.Commit, error) {
	if err := s.authorizeRead(ctx, caller, patientID, access.ScopeAll); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultCommitLogLimit
	}
	if limit > maxCommitLogLimit {
		limit = maxCommitLogLimit
	}
	return s.repo.ListCommitsByPatient(ctx, patientID, limit)
}

// GetContentURL issues a time-limited read handle for one version's
// stored content.
func (s *RecordService) GetContentURL(ctx context.Context, recordID uuid.UUID, versionNo int, ttl time.Duration, caller *domain.Identity) (string, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return "", err
	}
	if err := s.authorizeRead(ctx, caller, rec.PatientID, string(rec.Type)); err != nil {
		return "", err
	}
	v, err := s.repo.GetVersion(ctx, recordID, versionNo)
	if err != nil {
		return "", err
	}

	url, err := s.blobs.TemporaryReadURL(ctx, v.StorageKey, ttl)
	if err != nil {
		return "", fmt.Errorf("issuing read handle: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		ActorID: caller.ID, ActorRole: string(caller.Role),
		Action: "read", ResourceType: "version", ResourceID: v.ID.String(),
	})

	return url, nil
}

func (s *RecordService) ListRecords(ctx context.Context, patientID uuid.UUID, caller *domain.Identity) ([]*record.Record, error) {
	if err := s.authorizeRead(ctx, caller, patientID, access.ScopeAll); err != nil {
		return nil, err
	}
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *RecordService) authorizeRead(ctx context.Context, caller *domain.Identity, patientID uuid.UUID, recordType string) error {
	if caller.IsPatient() {
		if caller.ID != patientID {
			return access.ErrAccessDenied
		}
		return nil
	}
	return s.enforcer.Authorize(ctx, caller.ID, patientID, recordType, access.ModeRead)
}

func (s *RecordService) authorizeWrite(ctx context.Context, caller *domain.Identity, patientID uuid.UUID, recordType string) error {
	if caller.IsPatient() {
		if caller.ID != patientID {
			return access.ErrAccessDenied
		}
		return nil
	}
	if !caller.Verified {
		return access.ErrAccessDenied
	}
	return s.enforcer.Authorize(ctx, caller.ID, patientID, recordType, access.ModeWrite)
}

// afterCommit runs the fire-and-forget side effects of a committed
// version: doctor metrics, audit, and owner notification. None of them can
// fail the commit.
func (s *RecordService) afterCommit(ctx context.Context, caller *domain.Identity, rec *record.Record, v *record.Version, ip string) {
	if caller.IsDoctor() {
		if err := s.stats.OnVersionCommitted(ctx, caller.ID, v.Change == record.ChangeUpdate); err != nil {
			s.log.Error("aggregator: version committed", zap.Error(err))
		}
		s.notify.SendAsync(&Notification{
			RecipientID: rec.PatientID,
			Type:        "record_" + string(v.Change),
			Title:       "Your record was updated",
			Body:        v.Message,
			Metadata:    map[string]string{"record_id": rec.ID.String()},
		})
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		ActorID: caller.ID, ActorRole: string(caller.Role),
		Action: "create", ResourceType: "version", ResourceID: v.ID.String(), IPAddress: ip,
		Metadata: fmt.Sprintf(`{"record_id":%q,"version_no":%d}`, rec.ID.String(), v.VersionNo),
	})
}

func storageKey(patientID uuid.UUID, versionNo int) string {
	return fmt.Sprintf("records/%s/v%d-%s", patientID, versionNo, uuid.New())
}

func validateCreateRecord(cmd *record.CreateRecordCommand) error {
	var errs []string

	if strings.TrimSpace(cmd.Title) == "" {
		errs = append(errs, "title is required")
	}
	if !cmd.Type.IsValid() {
		errs = append(errs, "record_type is invalid")
	}
	errs = append(errs, validateContent(cmd.Message, cmd.FileName, cmd.Content)...)

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validateAppendVersion(cmd *record.AppendVersionCommand) error {
	errs := validateContent(cmd.Message, cmd.FileName, cmd.Content)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validateContent(message, fileName string, content []byte) []string {
	var errs []string
	if len(strings.TrimSpace(message)) < record.MinMessageLen {
		errs = append(errs, fmt.Sprintf("message must be at least %d characters", record.MinMessageLen))
	}
	if strings.TrimSpace(fileName) == "" {
		errs = append(errs, "file_name is required")
	}
	if len(content) == 0 {
		errs = append(errs, "content is required")
	}
	return errs
}
