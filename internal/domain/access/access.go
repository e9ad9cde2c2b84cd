package access

import (
	"time"

	"github.com/careledger/careledger/internal/domain/record"
	"github.com/google/uuid"
)

type Level string

const (
	LevelRead      Level = "read"
	LevelReadWrite Level = "read_write"
)

func (l Level) IsValid() bool {
	return l == LevelRead || l == LevelReadWrite
}

type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Covers reports whether a granted level permits the requested mode.
func (l Level) Covers(m Mode) bool {
	if m == ModeWrite {
		return l == LevelReadWrite
	}
	return true
}

// ScopeAll is the wildcard scope entry covering every record type.
const ScopeAll = "all"

// Scope is the set of record types a grant covers, or the single wildcard
// entry "all".
type Scope []string

func (s Scope) IsValid() bool {
	if len(s) == 0 {
		return false
	}
	for _, entry := range s {
		if entry == ScopeAll {
			continue
		}
		if !record.RecordType(entry).IsValid() {
			return false
		}
	}
	return true
}

func (s Scope) CoversAll() bool {
	for _, entry := range s {
		if entry == ScopeAll {
			return true
		}
	}
	return false
}

// Covers reports whether the scope includes the given record type. The
// wildcard request ScopeAll (used for whole-history listing) is covered
// only if the grant itself carries the wildcard.
func (s Scope) Covers(rt string) bool {
	if s.CoversAll() {
		return true
	}
	if rt == ScopeAll {
		return false
	}
	for _, entry := range s {
		if entry == rt {
			return true
		}
	}
	return false
}

// State transition possibilities:
//
//	pending  → approved | denied
//	approved → revoked | expired
//
// denied, revoked and expired are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusDenied, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// AccessRequest is one doctor↔patient access negotiation: a time-bounded,
// scope-limited permission subject to patient approval.
type AccessRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index:idx_access_pair,priority:1"`
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index:idx_access_pair,priority:2"`

	Reason     string `gorm:"column:reason;type:text;not null"`
	Level      Level  `gorm:"column:level;type:varchar(20);not null"`
	Scope      Scope  `gorm:"column:scope;serializer:json"`
	ExpiryDays int    `gorm:"column:expiry_days;not null"`

	Status  Status `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	Expired bool   `gorm:"column:expired;default:false"`

	RespondedAt *time.Time `gorm:"column:responded_at"`
	RevokedAt   *time.Time `gorm:"column:revoked_at"`
	ExpiresAt   *time.Time `gorm:"column:expires_at;index"`

	ResponderNote string `gorm:"column:responder_note;type:text"`
}

func (AccessRequest) TableName() string {
	return "consent.access_requests"
}

func (r *AccessRequest) CanTransitionTo(next Status) bool {
	allowed := map[Status][]Status{
		StatusPending:  {StatusApproved, StatusDenied},
		StatusApproved: {StatusRevoked, StatusExpired},
		StatusDenied:   {},
		StatusRevoked:  {},
		StatusExpired:  {},
	}
	for _, s := range allowed[r.Status] {
		if s == next {
			return true
		}
	}
	return false
}

func (r *AccessRequest) Approve(now time.Time, note string) error {
	if !r.CanTransitionTo(StatusApproved) {
		return ErrNotPending
	}
	expiresAt := now.Add(time.Duration(r.ExpiryDays) * 24 * time.Hour)
	r.Status = StatusApproved
	r.RespondedAt = &now
	r.ExpiresAt = &expiresAt
	r.ResponderNote = note
	return nil
}

func (r *AccessRequest) Deny(now time.Time, note string) error {
	if !r.CanTransitionTo(StatusDenied) {
		return ErrNotPending
	}
	r.Status = StatusDenied
	r.RespondedAt = &now
	r.ResponderNote = note
	return nil
}

func (r *AccessRequest) Revoke(now time.Time) error {
	if !r.CanTransitionTo(StatusRevoked) {
		return ErrNotApproved
	}
	r.Status = StatusRevoked
	r.RevokedAt = &now
	r.ExpiresAt = &now
	return nil
}

func (r *AccessRequest) Expire() error {
	if !r.CanTransitionTo(StatusExpired) {
		return ErrNotApproved
	}
	r.Status = StatusExpired
	r.Expired = true
	return nil
}

// ActiveAt reports whether the grant confers access at the given instant.
// Expiry is re-checked here so that a lapsed grant denies access even if
// the background sweep has not run yet.
func (r *AccessRequest) ActiveAt(now time.Time) bool {
	if r.Status != StatusApproved {
		return false
	}
	if r.ExpiresAt == nil {
		return false
	}
	return now.Before(*r.ExpiresAt)
}

// ResponseTimeHours is the approval latency fed to the contribution
// aggregator's rolling average.
func (r *AccessRequest) ResponseTimeHours() float64 {
	if r.RespondedAt == nil {
		return 0
	}
	return r.RespondedAt.Sub(r.CreatedAt).Hours()
}

type CreateRequestCommand struct {
	DoctorID   uuid.UUID
	PatientID  uuid.UUID
	Reason     string
	Level      Level
	Scope      Scope
	ExpiryDays int
}

type RespondCommand struct {
	RequestID uuid.UUID
	Approve   bool
	Note      string
}
