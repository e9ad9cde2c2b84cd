package record

import (
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/google/uuid"
)

type RecordType string

const (
	TypePrescription     RecordType = "prescription"
	TypeLabReport        RecordType = "lab_report"
	TypeXRay             RecordType = "xray"
	TypeDischargeSummary RecordType = "discharge_summary"
	TypeVaccination      RecordType = "vaccination"
	TypeImaging          RecordType = "imaging"
	TypeOther            RecordType = "other"
)

func (t RecordType) IsValid() bool {
	switch t {
	case TypePrescription, TypeLabReport, TypeXRay, TypeDischargeSummary,
		TypeVaccination, TypeImaging, TypeOther:
		return true
	}
	return false
}

type ChangeType string

const (
	ChangeInitialUpload ChangeType = "initial_upload"
	ChangeUpdate        ChangeType = "update"
)

// MinMessageLen is the shortest commit message accepted on any version.
const MinMessageLen = 3

// Record is a patient-owned document lineage. The record row itself only
// carries metadata and the head of the version chain; content lives in
// immutable Version rows.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`

	Title string     `gorm:"column:title;type:varchar(255);not null"`
	Type  RecordType `gorm:"column:type;type:varchar(30);not null;index"`
	Tags  []string   `gorm:"column:tags;serializer:json"`

	// CurrentVersionNo always equals VersionCount; both advance inside the
	// same transaction that inserts the Version row.
	CurrentVersionNo int        `gorm:"column:current_version_no;not null;default:0"`
	CurrentVersionID *uuid.UUID `gorm:"column:current_version_id;type:uuid"`
	VersionCount     int        `gorm:"column:version_count;not null;default:0"`

	Archived bool `gorm:"column:archived;default:false;index"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Record) TableName() string {
	return "ledger.records"
}

// Version is one commit to a Record. Versions are never mutated or deleted
// after creation; corrections are new versions.
type Version struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	RecordID  uuid.UUID `gorm:"column:record_id;type:uuid;not null;uniqueIndex:idx_record_version_no,priority:1"`
	VersionNo int       `gorm:"column:version_no;not null;uniqueIndex:idx_record_version_no,priority:2"`

	AuthorID   uuid.UUID   `gorm:"column:author_id;type:uuid;not null;index"`
	AuthorRole domain.Role `gorm:"column:author_role;type:varchar(30);not null"`

	Message string     `gorm:"column:message;type:text;not null"`
	Change  ChangeType `gorm:"column:change_type;type:varchar(30);not null"`

	StorageKey string `gorm:"column:storage_key;type:varchar(512);not null"`
	FileName   string `gorm:"column:file_name;type:varchar(255);not null"`
	FileSize   int64  `gorm:"column:file_size;not null"`
	MediaType  string `gorm:"column:media_type;type:varchar(100);not null"`
}

func (Version) TableName() string {
	return "ledger.versions"
}

// Commit is the cross-record audit projection of a Version, indexed by the
// owning patient so a whole history can be listed in one pass. Created in
// the same transaction as its Version; never updated.
type Commit struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	RecordID  uuid.UUID `gorm:"column:record_id;type:uuid;not null;index"`
	VersionID uuid.UUID `gorm:"column:version_id;type:uuid;not null"`
	VersionNo int       `gorm:"column:version_no;not null"`

	RecordTitle string     `gorm:"column:record_title;type:varchar(255);not null"`
	RecordType  RecordType `gorm:"column:record_type;type:varchar(30);not null;index"`

	AuthorID   uuid.UUID   `gorm:"column:author_id;type:uuid;not null;index"`
	AuthorRole domain.Role `gorm:"column:author_role;type:varchar(30);not null"`

	Message string     `gorm:"column:message;type:text;not null"`
	Change  ChangeType `gorm:"column:change_type;type:varchar(30);not null"`
}

func (Commit) TableName() string {
	return "ledger.commits"
}

type CreateRecordCommand struct {
	PatientID uuid.UUID
	Title     string
	Type      RecordType
	Tags      []string
	Message   string
	FileName  string
	MediaType string
	Content   []byte
}

type AppendVersionCommand struct {
	RecordID  uuid.UUID
	Message   string
	FileName  string
	MediaType string
	Content   []byte
}
