package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/internal/domain/access"
	"github.com/careledger/careledger/internal/domain/profile"
	"github.com/careledger/careledger/internal/domain/record"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- MockRecordRepository ---

var _ record.Repository = (*MockRecordRepository)(nil)

type MockRecordRepository struct {
	CreateFunc               func(ctx context.Context, r *record.Record, v *record.Version) error
	GetByIDFunc              func(ctx context.Context, id uuid.UUID) (*record.Record, error)
	AppendVersionFunc        func(ctx context.Context, v *record.Version) error
	ListVersionsFunc         func(ctx context.Context, recordID uuid.UUID) ([]*record.Version, error)
	GetVersionFunc           func(ctx context.Context, recordID uuid.UUID, versionNo int) (*record.Version, error)
	ListCommitsByPatientFunc func(ctx context.Context, patientID uuid.UUID, limit int) ([]*record.Commit, error)
	ListByPatientFunc        func(ctx context.Context, patientID uuid.UUID) ([]*record.Record, error)
}

func (m *MockRecordRepository) Create(ctx context.Context, r *record.Record, v *record.Version) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, r, v)
	}
	r.ID = uuid.New()
	v.ID = uuid.New()
	v.RecordID = r.ID
	v.VersionNo = 1
	v.Change = record.ChangeInitialUpload
	r.CurrentVersionNo = 1
	r.VersionCount = 1
	return nil
}

func (m *MockRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, errors.New("GetByIDFunc not implemented in mock")
}

func (m *MockRecordRepository) AppendVersion(ctx context.Context, v *record.Version) error {
	if m.AppendVersionFunc != nil {
		return m.AppendVersionFunc(ctx, v)
	}
	v.ID = uuid.New()
	v.Change = record.ChangeUpdate
	return nil
}

func (m *MockRecordRepository) ListVersions(ctx context.Context, recordID uuid.UUID) ([]*record.Version, error) {
	if m.ListVersionsFunc != nil {
		return m.ListVersionsFunc(ctx, recordID)
	}
	return nil, nil
}

func (m *MockRecordRepository) GetVersion(ctx context.Context, recordID uuid.UUID, versionNo int) (*record.Version, error) {
	if m.GetVersionFunc != nil {
		return m.GetVersionFunc(ctx, recordID, versionNo)
	}
	return nil, errors.New("GetVersionFunc not implemented in mock")
}

func (m *MockRecordRepository) ListCommitsByPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]*record.Commit, error) {
	if m.ListCommitsByPatientFunc != nil {
		return m.ListCommitsByPatientFunc(ctx, patientID, limit)
	}
	return nil, nil
}

func (m *MockRecordRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*record.Record, error) {
	if m.ListByPatientFunc != nil {
		return m.ListByPatientFunc(ctx, patientID)
	}
	return nil, nil
}

// --- MockAccessRepository ---

var _ access.Repository = (*MockAccessRepository)(nil)

type MockAccessRepository struct {
	CreateFunc        func(ctx context.Context, r *access.AccessRequest) error
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error)
	FindApprovedFunc  func(ctx context.Context, doctorID, patientID uuid.UUID) (*access.AccessRequest, error)
	UpdateStatusFunc  func(ctx context.Context, r *access.AccessRequest) error
	ExpireDueFunc     func(ctx context.Context, now time.Time) (int64, error)
	ListByPatientFunc func(ctx context.Context, patientID uuid.UUID) ([]*access.AccessRequest, error)
	ListByDoctorFunc  func(ctx context.Context, doctorID uuid.UUID) ([]*access.AccessRequest, error)
}

func (m *MockAccessRepository) Create(ctx context.Context, r *access.AccessRequest) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, r)
	}
	r.ID = uuid.New()
	r.Status = access.StatusPending
	r.CreatedAt = time.Now()
	return nil
}

func (m *MockAccessRepository) GetByID(ctx context.Context, id uuid.UUID) (*access.AccessRequest, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, errors.New("GetByIDFunc not implemented in mock")
}

func (m *MockAccessRepository) FindApproved(ctx context.Context, doctorID, patientID uuid.UUID) (*access.AccessRequest, error) {
	if m.FindApprovedFunc != nil {
		return m.FindApprovedFunc(ctx, doctorID, patientID)
	}
	return nil, access.ErrRequestNotFound
}

func (m *MockAccessRepository) UpdateStatus(ctx context.Context, r *access.AccessRequest) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, r)
	}
	return nil
}

func (m *MockAccessRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if m.ExpireDueFunc != nil {
		return m.ExpireDueFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockAccessRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*access.AccessRequest, error) {
	if m.ListByPatientFunc != nil {
		return m.ListByPatientFunc(ctx, patientID)
	}
	return nil, nil
}

func (m *MockAccessRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*access.AccessRequest, error) {
	if m.ListByDoctorFunc != nil {
		return m.ListByDoctorFunc(ctx, doctorID)
	}
	return nil, nil
}

// --- MemProfileRepository ---
//
// In-memory implementation backing the stats tests, where the assertions
// are about the evolving profile state rather than individual calls.

var _ profile.Repository = (*MemProfileRepository)(nil)

type MemProfileRepository struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]*profile.DoctorProfile
	patients map[uuid.UUID]*profile.PatientProfile

	FailEnsure bool
	FailSave   bool
}

func NewMemProfileRepository() *MemProfileRepository {
	return &MemProfileRepository{
		doctors:  make(map[uuid.UUID]*profile.DoctorProfile),
		patients: make(map[uuid.UUID]*profile.PatientProfile),
	}
}

func (m *MemProfileRepository) EnsureDoctor(ctx context.Context, doctorID uuid.UUID) (*profile.DoctorProfile, error) {
	if m.FailEnsure {
		return nil, errors.New("ensure failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.doctors[doctorID]
	if !ok {
		p = &profile.DoctorProfile{
			DoctorID:     doctorID,
			Activity:     make(map[string]int),
			Endorsements: make(map[string]int),
		}
		m.doctors[doctorID] = p
	}
	cp := *p
	cp.Activity = copyMap(p.Activity)
	cp.Endorsements = copyMap(p.Endorsements)
	return &cp, nil
}

func (m *MemProfileRepository) GetDoctor(ctx context.Context, doctorID uuid.UUID) (*profile.DoctorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.doctors[doctorID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	cp := *p
	cp.Activity = copyMap(p.Activity)
	cp.Endorsements = copyMap(p.Endorsements)
	return &cp, nil
}

func (m *MemProfileRepository) ApplyDoctorDelta(ctx context.Context, doctorID uuid.UUID, d profile.DoctorDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.doctors[doctorID]
	if !ok {
		return profile.ErrProfileNotFound
	}
	p.TotalCases += d.TotalCases
	p.ActiveCases += d.ActiveCases
	if p.ActiveCases < 0 {
		p.ActiveCases = 0
	}
	p.RecordsAdded += d.RecordsAdded
	p.RecordsUpdated += d.RecordsUpdated
	return nil
}

func (m *MemProfileRepository) SaveDoctor(ctx context.Context, p *profile.DoctorProfile) error {
	if m.FailSave {
		return errors.New("save failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.doctors[p.DoctorID]
	if !ok {
		return profile.ErrProfileNotFound
	}
	stored.AvgResponseHours = p.AvgResponseHours
	stored.AccuracyScore = p.AccuracyScore
	stored.Activity = copyMap(p.Activity)
	stored.Endorsements = copyMap(p.Endorsements)
	stored.ConditionTags = p.ConditionTags
	return nil
}

func (m *MemProfileRepository) GetPatient(ctx context.Context, patientID uuid.UUID) (*profile.PatientProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[patientID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemProfileRepository) AdjustActiveCollaborators(ctx context.Context, patientID uuid.UUID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[patientID]
	if !ok {
		p = &profile.PatientProfile{PatientID: patientID}
		m.patients[patientID] = p
	}
	p.ActiveCollaborators += delta
	if p.ActiveCollaborators < 0 {
		p.ActiveCollaborators = 0
	}
	return nil
}

func copyMap(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// --- MockBlobStore ---

var _ BlobStore = (*MockBlobStore)(nil)

type MockBlobStore struct {
	PutFunc              func(ctx context.Context, key string, data []byte, contentType string) error
	TemporaryReadURLFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)

	mu   sync.Mutex
	Puts []string
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	m.Puts = append(m.Puts, key)
	m.mu.Unlock()
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, data, contentType)
	}
	return nil
}

func (m *MockBlobStore) TemporaryReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TemporaryReadURLFunc != nil {
		return m.TemporaryReadURLFunc(ctx, key, ttl)
	}
	return "https://blobs.example.com/" + key, nil
}

// --- MockAuthorizer ---

var _ Authorizer = (*MockAuthorizer)(nil)

type MockAuthorizer struct {
	AuthorizeFunc func(ctx context.Context, doctorID, patientID uuid.UUID, recordType string, mode access.Mode) error
}

func (m *MockAuthorizer) Authorize(ctx context.Context, doctorID, patientID uuid.UUID, recordType string, mode access.Mode) error {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, doctorID, patientID, recordType, mode)
	}
	return nil
}

// --- RecordingAggregator ---
//
// Captures aggregator events in order so tests can assert sequencing.

var _ Aggregator = (*RecordingAggregator)(nil)
var _ VersionAggregator = (*RecordingAggregator)(nil)

type RecordingAggregator struct {
	mu     sync.Mutex
	Events []string

	NewCaseErr error
}

func (a *RecordingAggregator) record(event string) {
	a.mu.Lock()
	a.Events = append(a.Events, event)
	a.mu.Unlock()
}

func (a *RecordingAggregator) OnNewCaseApproved(ctx context.Context, doctorID uuid.UUID) error {
	a.record("new_case")
	return a.NewCaseErr
}

func (a *RecordingAggregator) OnCaseCompleted(ctx context.Context, doctorID uuid.UUID) error {
	a.record("case_completed")
	return nil
}

func (a *RecordingAggregator) OnResponseRecorded(ctx context.Context, doctorID uuid.UUID, responseTimeHours float64) error {
	a.record("response_recorded")
	return nil
}

func (a *RecordingAggregator) OnVersionCommitted(ctx context.Context, doctorID uuid.UUID, isUpdate bool) error {
	if isUpdate {
		a.record("version_update")
	} else {
		a.record("version_added")
	}
	return nil
}

// --- Async collaborators ---

type MockAuditRepository struct {
	CreateFunc func(ctx context.Context, entry *domain.AuditLog) error
}

func (m *MockAuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

func newTestAudit() *AuditService {
	return NewAuditService(&MockAuditRepository{}, zap.NewNop())
}

func newTestNotify() *NotifyService {
	return NewNotifyService(&LogSender{Log: zap.NewNop()}, zap.NewNop())
}

// --- Identities ---

func doctorIdentity(id uuid.UUID) *domain.Identity {
	return &domain.Identity{ID: id, Role: domain.RoleDoctor, Verified: true}
}

func patientIdentity(id uuid.UUID) *domain.Identity {
	return &domain.Identity{ID: id, Role: domain.RolePatient}
}
