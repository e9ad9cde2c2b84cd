package service

import (
	"context"
	"testing"
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/internal/domain/access"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAccessService(repo access.Repository, stats Aggregator) *AccessService {
	return NewAccessService(repo, NewMemProfileRepository(), stats, newTestAudit(), newTestNotify(), zap.NewNop())
}

func validCreateCommand(doctorID, patientID uuid.UUID) *access.CreateRequestCommand {
	return &access.CreateRequestCommand{
		DoctorID:   doctorID,
		PatientID:  patientID,
		Reason:     "post-operative follow-up",
		Level:      access.LevelRead,
		Scope:      access.Scope{"lab_report"},
		ExpiryDays: 30,
	}
}

func TestAccessService_CreateRequest(t *testing.T) {
	doctorID := uuid.New()
	patientID := uuid.New()
	svc := newAccessService(&MockAccessRepository{}, &RecordingAggregator{})

	req, err := svc.CreateRequest(context.Background(), validCreateCommand(doctorID, patientID), doctorIdentity(doctorID), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, access.StatusPending, req.Status)
	assert.Equal(t, doctorID, req.DoctorID)
	assert.Equal(t, patientID, req.PatientID)
}

func TestAccessService_CreateRequest_CallerGuards(t *testing.T) {
	doctorID := uuid.New()
	patientID := uuid.New()
	svc := newAccessService(&MockAccessRepository{}, &RecordingAggregator{})
	cmd := validCreateCommand(doctorID, patientID)

	_, err := svc.CreateRequest(context.Background(), cmd, patientIdentity(patientID), "")
	assert.ErrorIs(t, err, ErrForbidden, "patients cannot open access requests")

	_, err = svc.CreateRequest(context.Background(), cmd, doctorIdentity(uuid.New()), "")
	assert.ErrorIs(t, err, ErrForbidden, "a doctor cannot request on another doctor's behalf")

	unverified := &domain.Identity{ID: doctorID, Role: domain.RoleDoctor}
	_, err = svc.CreateRequest(context.Background(), cmd, unverified, "")
	assert.ErrorIs(t, err, access.ErrAccessDenied)
}

func TestAccessService_CreateRequest_Validation(t *testing.T) {
	doctorID := uuid.New()
	svc := newAccessService(&MockAccessRepository{}, &RecordingAggregator{})

	cmd := &access.CreateRequestCommand{
		DoctorID:   doctorID,
		PatientID:  uuid.New(),
		Reason:     "   ",
		Level:      "admin",
		Scope:      access.Scope{},
		ExpiryDays: 0,
	}
	_, err := svc.CreateRequest(context.Background(), cmd, doctorIdentity(doctorID), "")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)
}

func TestAccessService_CreateRequest_Conflict(t *testing.T) {
	doctorID := uuid.New()
	repo := &MockAccessRepository{
		CreateFunc: func(ctx context.Context, r *access.AccessRequest) error {
			return access.ErrRequestConflict
		},
	}
	svc := newAccessService(repo, &RecordingAggregator{})

	_, err := svc.CreateRequest(context.Background(), validCreateCommand(doctorID, uuid.New()), doctorIdentity(doctorID), "")
	assert.ErrorIs(t, err, access.ErrRequestConflict)
}

func pendingRequest(doctorID, patientID uuid.UUID, createdAt time.Time) *access.AccessRequest {
	return &access.AccessRequest{
		ID:         uuid.New(),
		CreatedAt:  createdAt,
		DoctorID:   doctorID,
		PatientID:  patientID,
		Reason:     "follow-up",
		Level:      access.LevelReadWrite,
		Scope:      access.Scope{access.ScopeAll},
		ExpiryDays: 7,
		Status:     access.StatusPending,
	}
}

func TestAccessService_Respond_Approve(t *testing.T) {
	doctorID := uuid.New()
	patientID := uuid.New()
	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	responded := created.Add(12 * time.Hour)

	req := pendingRequest(doctorID, patientID, created)
	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	agg := &RecordingAggregator{}
	svc := newAccessService(repo, agg)
	svc.now = func() time.Time { return responded }

	out, err := svc.Respond(context.Background(),
		&access.RespondCommand{RequestID: req.ID, Approve: true, Note: "ok"},
		patientIdentity(patientID), "")
	require.NoError(t, err)

	assert.Equal(t, access.StatusApproved, out.Status)
	require.NotNil(t, out.ExpiresAt)
	assert.Equal(t, responded.Add(7*24*time.Hour), *out.ExpiresAt)

	// The case counter update must land before the response-time sample.
	assert.Equal(t, []string{"new_case", "response_recorded"}, agg.Events)
}

func TestAccessService_Respond_Deny(t *testing.T) {
	doctorID := uuid.New()
	patientID := uuid.New()
	req := pendingRequest(doctorID, patientID, time.Now())
	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	agg := &RecordingAggregator{}
	svc := newAccessService(repo, agg)

	out, err := svc.Respond(context.Background(),
		&access.RespondCommand{RequestID: req.ID, Approve: false, Note: "not my doctor"},
		patientIdentity(patientID), "")
	require.NoError(t, err)

	assert.Equal(t, access.StatusDenied, out.Status)
	assert.Nil(t, out.ExpiresAt)
	assert.Empty(t, agg.Events, "a denial must not feed the aggregator")
}

func TestAccessService_Respond_OnlyTargetPatient(t *testing.T) {
	req := pendingRequest(uuid.New(), uuid.New(), time.Now())
	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	svc := newAccessService(repo, &RecordingAggregator{})

	_, err := svc.Respond(context.Background(),
		&access.RespondCommand{RequestID: req.ID, Approve: true},
		patientIdentity(uuid.New()), "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Respond(context.Background(),
		&access.RespondCommand{RequestID: req.ID, Approve: true},
		doctorIdentity(req.DoctorID), "")
	assert.ErrorIs(t, err, ErrForbidden, "the requesting doctor cannot self-approve")
}

func TestAccessService_Respond_NotPending(t *testing.T) {
	req := pendingRequest(uuid.New(), uuid.New(), time.Now())
	require.NoError(t, req.Deny(time.Now(), ""))

	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	svc := newAccessService(repo, &RecordingAggregator{})

	_, err := svc.Respond(context.Background(),
		&access.RespondCommand{RequestID: req.ID, Approve: true},
		patientIdentity(req.PatientID), "")
	assert.ErrorIs(t, err, access.ErrNotPending)
}

func TestAccessService_Respond_AggregatorFailureDoesNotFailApproval(t *testing.T) {
	req := pendingRequest(uuid.New(), uuid.New(), time.Now())
	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	agg := &RecordingAggregator{NewCaseErr: assert.AnError}
	svc := newAccessService(repo, agg)

	out, err := svc.Respond(context.Background(),
		&access.RespondCommand{RequestID: req.ID, Approve: true},
		patientIdentity(req.PatientID), "")
	require.NoError(t, err)
	assert.Equal(t, access.StatusApproved, out.Status)
	assert.Equal(t, []string{"new_case"}, agg.Events, "the sample is skipped when the count update failed")
}

func TestAccessService_Revoke(t *testing.T) {
	req := pendingRequest(uuid.New(), uuid.New(), time.Now())
	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	require.NoError(t, req.Approve(now.Add(-time.Hour), ""))

	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	agg := &RecordingAggregator{}
	svc := newAccessService(repo, agg)
	svc.now = func() time.Time { return now }

	out, err := svc.Revoke(context.Background(), req.ID, patientIdentity(req.PatientID), "")
	require.NoError(t, err)

	assert.Equal(t, access.StatusRevoked, out.Status)
	assert.False(t, out.ActiveAt(now), "a revoked grant must stop authorizing immediately")
	assert.Equal(t, []string{"case_completed"}, agg.Events)
}

func TestAccessService_Revoke_RequiresApprovedGrant(t *testing.T) {
	req := pendingRequest(uuid.New(), uuid.New(), time.Now())
	repo := &MockAccessRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
			return req, nil
		},
	}
	svc := newAccessService(repo, &RecordingAggregator{})

	_, err := svc.Revoke(context.Background(), req.ID, patientIdentity(req.PatientID), "")
	assert.ErrorIs(t, err, access.ErrNotApproved)
}

func TestAccessService_SweepExpired(t *testing.T) {
	var got time.Time
	repo := &MockAccessRepository{
		ExpireDueFunc: func(ctx context.Context, now time.Time) (int64, error) {
			got = now
			return 3, nil
		},
	}
	svc := newAccessService(repo, &RecordingAggregator{})

	now := time.Now()
	count, err := svc.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, now, got)
}

func TestAccessService_Authorize(t *testing.T) {
	doctorID := uuid.New()
	patientID := uuid.New()
	now := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

	grant := func(level access.Level, scope access.Scope, expiresAt time.Time) *access.AccessRequest {
		return &access.AccessRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			Level:     level,
			Scope:     scope,
			Status:    access.StatusApproved,
			ExpiresAt: &expiresAt,
		}
	}

	tests := []struct {
		name       string
		grant      *access.AccessRequest
		grantErr   error
		recordType string
		mode       access.Mode
		wantDenied bool
	}{
		{
			name:       "no grant",
			grantErr:   access.ErrRequestNotFound,
			recordType: "lab_report",
			mode:       access.ModeRead,
			wantDenied: true,
		},
		{
			name:       "read within scope",
			grant:      grant(access.LevelRead, access.Scope{"lab_report"}, now.Add(time.Hour)),
			recordType: "lab_report",
			mode:       access.ModeRead,
		},
		{
			name:       "write on read-only grant",
			grant:      grant(access.LevelRead, access.Scope{"lab_report"}, now.Add(time.Hour)),
			recordType: "lab_report",
			mode:       access.ModeWrite,
			wantDenied: true,
		},
		{
			name:       "write on read_write grant",
			grant:      grant(access.LevelReadWrite, access.Scope{"lab_report"}, now.Add(time.Hour)),
			recordType: "lab_report",
			mode:       access.ModeWrite,
		},
		{
			name:       "record type outside scope",
			grant:      grant(access.LevelReadWrite, access.Scope{"lab_report"}, now.Add(time.Hour)),
			recordType: "xray",
			mode:       access.ModeRead,
			wantDenied: true,
		},
		{
			name:       "wildcard grant covers any type",
			grant:      grant(access.LevelRead, access.Scope{access.ScopeAll}, now.Add(time.Hour)),
			recordType: "xray",
			mode:       access.ModeRead,
		},
		{
			name:       "whole-history needs wildcard grant",
			grant:      grant(access.LevelRead, access.Scope{"lab_report", "xray"}, now.Add(time.Hour)),
			recordType: access.ScopeAll,
			mode:       access.ModeRead,
			wantDenied: true,
		},
		{
			name:       "lapsed grant denies before sweep",
			grant:      grant(access.LevelReadWrite, access.Scope{access.ScopeAll}, now.Add(-time.Minute)),
			recordType: "lab_report",
			mode:       access.ModeRead,
			wantDenied: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockAccessRepository{
				FindApprovedFunc: func(ctx context.Context, d, p uuid.UUID) (*access.AccessRequest, error) {
					if tt.grantErr != nil {
						return nil, tt.grantErr
					}
					return tt.grant, nil
				},
			}
			svc := newAccessService(repo, &RecordingAggregator{})
			svc.now = func() time.Time { return now }

			err := svc.Authorize(context.Background(), doctorID, patientID, tt.recordType, tt.mode)
			if tt.wantDenied {
				assert.ErrorIs(t, err, access.ErrAccessDenied)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccessService_ListRequests(t *testing.T) {
	patientID := uuid.New()
	doctorID := uuid.New()
	repo := &MockAccessRepository{
		ListByPatientFunc: func(ctx context.Context, id uuid.UUID) ([]*access.AccessRequest, error) {
			assert.Equal(t, patientID, id)
			return []*access.AccessRequest{{PatientID: id}}, nil
		},
		ListByDoctorFunc: func(ctx context.Context, id uuid.UUID) ([]*access.AccessRequest, error) {
			assert.Equal(t, doctorID, id)
			return []*access.AccessRequest{{DoctorID: id}, {DoctorID: id}}, nil
		},
	}
	svc := newAccessService(repo, &RecordingAggregator{})

	fromPatient, err := svc.ListRequests(context.Background(), patientIdentity(patientID))
	require.NoError(t, err)
	assert.Len(t, fromPatient, 1)

	fromDoctor, err := svc.ListRequests(context.Background(), doctorIdentity(doctorID))
	require.NoError(t, err)
	assert.Len(t, fromDoctor, 2)
}
