package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Identity is what the authentication layer hands to every service call:
// who the caller is, which role they act in, and whether a doctor's
// licence has been verified by an administrator.
type Identity struct {
	ID       uuid.UUID
	Role     Role
	Verified bool
}

func (i Identity) IsDoctor() bool  { return i.Role == RoleDoctor }
func (i Identity) IsPatient() bool { return i.Role == RolePatient }

type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	Email        string `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null"`
	FirstName    string `gorm:"column:first_name;type:varchar(100);not null"`
	LastName     string `gorm:"column:last_name;type:varchar(100);not null"`
	Role         Role   `gorm:"column:role;type:varchar(30);not null;index"`

	// Doctors must have their licence verified before they can request
	// access to patient records or author versions.
	Verified bool `gorm:"column:verified;default:false"`

	IsActive         bool       `gorm:"column:is_active;default:true;index"`
	FailedLoginCount int        `gorm:"column:failed_login_count;default:0"`
	LockedUntil      *time.Time `gorm:"column:locked_until"`
	LastLoginAt      *time.Time `gorm:"column:last_login_at"`
}

func (User) TableName() string {
	return "auth.users"
}

// IsLocked returns true if the account is temporarily locked due to failed logins.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

func (u *User) Identity() *Identity {
	return &Identity{ID: u.ID, Role: u.Role, Verified: u.Verified}
}

type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionRead    AuditAction = "read"
	ActionUpdate  AuditAction = "update"
	ActionRespond AuditAction = "respond"
	ActionRevoke  AuditAction = "revoke"
	ActionExpire  AuditAction = "expire"
	ActionLogin   AuditAction = "login"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	ActorID   uuid.UUID `gorm:"column:actor_id;type:uuid;not null;index"`
	ActorRole Role      `gorm:"column:actor_role;type:varchar(30);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID string `gorm:"column:request_id;type:varchar(50);index"`

	Metadata string `gorm:"column:metadata;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID   uuid.UUID `json:"sub"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	Verified bool      `json:"verified"`
}
