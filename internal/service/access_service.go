package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/internal/domain/access"
	"github.com/careledger/careledger/internal/domain/profile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Aggregator is the slice of the stats service the access layer feeds.
type Aggregator interface {
	OnNewCaseApproved(ctx context.Context, doctorID uuid.UUID) error
	OnCaseCompleted(ctx context.Context, doctorID uuid.UUID) error
	OnResponseRecorded(ctx context.Context, doctorID uuid.UUID, responseTimeHours float64) error
}

type AccessService struct {
	repo     access.Repository
	profiles profile.Repository
	stats    Aggregator
	auditSvc *AuditService
	notify   *NotifyService
	log      *zap.Logger

	// now is overridable for tests.
	now func() time.Time
}

func NewAccessService(repo access.Repository, profiles profile.Repository, stats Aggregator, auditSvc *AuditService, notify *NotifyService, log *zap.Logger) *AccessService {
	return &AccessService{
		repo:     repo,
		profiles: profiles,
		stats:    stats,
		auditSvc: auditSvc,
		notify:   notify,
		log:      log,
		now:      time.Now,
	}
}

// CreateRequest opens a pending doctor→patient access negotiation. Only a
// verified doctor may request access, and only one pending or approved
// request may exist per (doctor, patient) pair.
func (s *AccessService) CreateRequest(ctx context.Context, cmd *access.CreateRequestCommand, caller *domain.Identity, ip string) (*access.AccessRequest, error) {
	if !caller.IsDoctor() || caller.ID != cmd.DoctorID {
		return nil, ErrForbidden
	}
	if !caller.Verified {
		return nil, access.ErrAccessDenied
	}
	if err := validateCreateRequest(cmd); err != nil {
		return nil, err
	}

	req := &access.AccessRequest{
		DoctorID:   cmd.DoctorID,
		PatientID:  cmd.PatientID,
		Reason:     strings.TrimSpace(cmd.Reason),
		Level:      cmd.Level,
		Scope:      cmd.Scope,
		ExpiryDays: cmd.ExpiryDays,
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		ActorID: caller.ID, ActorRole: string(caller.Role),
		Action: "create", ResourceType: "access_request", ResourceID: req.ID.String(), IPAddress: ip,
	})
	s.notify.SendAsync(&Notification{
		RecipientID: cmd.PatientID,
		Type:        "access_requested",
		Title:       "New access request",
		Body:        "A doctor has requested access to your records.",
		Metadata:    map[string]string{"request_id": req.ID.String()},
	})

	s.log.Info("access request created",
		zap.String("request_id", req.ID.String()),
		zap.String("doctor_id", cmd.DoctorID.String()),
	)

	return req, nil
}

// Respond approves or denies a pending request. Only the target patient
// may respond. Approval starts the validity window and feeds the
// aggregator: the case-count update fires before the response-time sample
// so the rolling average divides by the updated count.
func (s *AccessService) Respond(ctx context.Context, cmd *access.RespondCommand, caller *domain.Identity, ip string) (*access.AccessRequest, error) {
	req, err := s.repo.GetByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsPatient() || caller.ID != req.PatientID {
		return nil, ErrForbidden
	}

	now := s.now()
	if cmd.Approve {
		if err := req.Approve(now, cmd.Note); err != nil {
			return nil, err
		}
	} else {
		if err := req.Deny(now, cmd.Note); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateStatus(ctx, req); err != nil {
		return nil, fmt.Errorf("persisting response: %w", err)
	}

	if cmd.Approve {
		if err := s.profiles.AdjustActiveCollaborators(ctx, req.PatientID, 1); err != nil {
			s.log.Error("failed to bump active collaborators", zap.Error(err))
		}
		// Aggregator failures never roll back the approval.
		if err := s.stats.OnNewCaseApproved(ctx, req.DoctorID); err != nil {
			s.log.Error("aggregator: new case", zap.Error(err))
		} else if err := s.stats.OnResponseRecorded(ctx, req.DoctorID, req.ResponseTimeHours()); err != nil {
			s.log.Error("aggregator: response time", zap.Error(err))
		}
	}

	action := "respond"
	s.auditSvc.LogAsync(ctx, AuditEntry{
		ActorID: caller.ID, ActorRole: string(caller.Role),
		Action: action, ResourceType: "access_request", ResourceID: req.ID.String(), IPAddress: ip,
		Metadata: fmt.Sprintf(`{"approved":%t}`, cmd.Approve),
	})
	s.notify.SendAsync(&Notification{
		RecipientID: req.DoctorID,
		Type:        "access_" + string(req.Status),
		Title:       "Access request " + string(req.Status),
		Metadata:    map[string]string{"request_id": req.ID.String()},
	})

	return req, nil
}

// Revoke withdraws an approved grant. Takes effect synchronously: the
// grant stops authorizing reads and writes before any sweep runs.
func (s *AccessService) Revoke(ctx context.Context, requestID uuid.UUID, caller *domain.Identity, ip string) (*access.AccessRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !caller.IsPatient() || caller.ID != req.PatientID {
		return nil, ErrForbidden
	}

	if err := req.Revoke(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, req); err != nil {
		return nil, fmt.Errorf("persisting revocation: %w", err)
	}

	if err := s.profiles.AdjustActiveCollaborators(ctx, req.PatientID, -1); err != nil {
		s.log.Error("failed to drop active collaborators", zap.Error(err))
	}
	if err := s.stats.OnCaseCompleted(ctx, req.DoctorID); err != nil {
		s.log.Error("aggregator: case completed", zap.Error(err))
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		ActorID: caller.ID, ActorRole: string(caller.Role),
		Action: "revoke", ResourceType: "access_request", ResourceID: req.ID.String(), IPAddress: ip,
	})
	s.notify.SendAsync(&Notification{
		RecipientID: req.DoctorID,
		Type:        "access_revoked",
		Title:       "Access revoked",
		Metadata:    map[string]string{"request_id": req.ID.String()},
	})

	return req, nil
}

// SweepExpired transitions every approved request whose validity window
// has elapsed to expired. Idempotent; safe to run on any schedule.
func (s *AccessService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expiring due grants: %w", err)
	}
	if count > 0 {
		s.log.Info("expired access grants", zap.Int64("count", count))
	}
	return count, nil
}

// Authorize is the access enforcer: it permits (doctorID → patientID,
// recordType, mode) if and only if an approved, unexpired grant exists
// whose level covers the mode and whose scope covers the record type.
// Pass access.ScopeAll as recordType for whole-history operations; that is
// allowed only when the grant itself carries the wildcard. Every denial is
// ErrAccessDenied.
func (s *AccessService) Authorize(ctx context.Context, doctorID, patientID uuid.UUID, recordType string, mode access.Mode) error {
	req, err := s.repo.FindApproved(ctx, doctorID, patientID)
	if err != nil {
		return access.ErrAccessDenied
	}
	if !req.ActiveAt(s.now()) {
		return access.ErrAccessDenied
	}
	if !req.Level.Covers(mode) {
		return access.ErrAccessDenied
	}
	if !req.Scope.Covers(recordType) {
		return access.ErrAccessDenied
	}
	return nil
}

// ListRequests returns the caller's own side of the negotiation history.
func (s *AccessService) ListRequests(ctx context.Context, caller *domain.Identity) ([]*access.AccessRequest, error) {
	if caller.IsPatient() {
		return s.repo.ListByPatient(ctx, caller.ID)
	}
	return s.repo.ListByDoctor(ctx, caller.ID)
}

func validateCreateRequest(cmd *access.CreateRequestCommand) error {
	var errs []string

	if strings.TrimSpace(cmd.Reason) == "" {
		errs = append(errs, "reason is required")
	}
	if !cmd.Level.IsValid() {
		errs = append(errs, "access_level must be read or read_write")
	}
	if !cmd.Scope.IsValid() {
		errs = append(errs, "record_types must be valid record types or [\"all\"]")
	}
	if cmd.ExpiryDays < 1 || cmd.ExpiryDays > 365 {
		errs = append(errs, "expiry_days must be between 1 and 365")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
