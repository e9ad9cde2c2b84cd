package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/internal/domain/profile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatsService is the contribution aggregator. It consumes case and
// version events and maintains per-doctor metrics: cumulative counters,
// the rolling response-time average, the accuracy score, and the per-day
// activity counter behind the contribution graph.
//
// Event handlers may be invoked concurrently from unrelated case events for
// the same doctor. Pure-delta counters go through atomic store increments;
// read-modify-write state (averages, accuracy, activity map) is serialized
// per doctor with a keyed mutex.
//
// The aggregator is eventually-consistent bookkeeping: its failures are
// logged and must never roll back or block the mutation that produced the
// event.
type StatsService struct {
	profiles profile.Repository
	log      *zap.Logger

	// now is overridable for tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewStatsService(profiles profile.Repository, log *zap.Logger) *StatsService {
	return &StatsService{
		profiles: profiles,
		log:      log,
		now:      time.Now,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *StatsService) doctorLock(doctorID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[doctorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[doctorID] = l
	}
	return l
}

// OnNewCaseApproved records an approved access request as a new case.
// Callers must invoke this before OnResponseRecorded for the same
// approval: the rolling average divides by the case count after this
// increment.
func (s *StatsService) OnNewCaseApproved(ctx context.Context, doctorID uuid.UUID) error {
	l := s.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.profiles.EnsureDoctor(ctx, doctorID); err != nil {
		return err
	}
	delta := profile.DoctorDelta{TotalCases: 1, ActiveCases: 1}
	if err := s.profiles.ApplyDoctorDelta(ctx, doctorID, delta); err != nil {
		return fmt.Errorf("applying case counters: %w", err)
	}
	return s.bumpActivityLocked(ctx, doctorID)
}

// OnCaseCompleted marks one of the doctor's active cases closed (grant
// revoked or expired). The active count floors at zero.
func (s *StatsService) OnCaseCompleted(ctx context.Context, doctorID uuid.UUID) error {
	if _, err := s.profiles.EnsureDoctor(ctx, doctorID); err != nil {
		return err
	}
	return s.profiles.ApplyDoctorDelta(ctx, doctorID, profile.DoctorDelta{ActiveCases: -1})
}

// OnVersionCommitted records an authored version: the update counter when
// the commit is an update, and today's activity either way.
func (s *StatsService) OnVersionCommitted(ctx context.Context, doctorID uuid.UUID, isUpdate bool) error {
	l := s.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.profiles.EnsureDoctor(ctx, doctorID); err != nil {
		return err
	}
	delta := profile.DoctorDelta{}
	if isUpdate {
		delta.RecordsUpdated = 1
	} else {
		delta.RecordsAdded = 1
	}
	if err := s.profiles.ApplyDoctorDelta(ctx, doctorID, delta); err != nil {
		return fmt.Errorf("applying version counters: %w", err)
	}
	return s.bumpActivityLocked(ctx, doctorID)
}

// OnResponseRecorded folds one approval latency sample into the rolling
// average, rounded to two decimals. TotalCases must already include the
// case this sample belongs to (see OnNewCaseApproved).
func (s *StatsService) OnResponseRecorded(ctx context.Context, doctorID uuid.UUID, responseTimeHours float64) error {
	l := s.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	p, err := s.profiles.EnsureDoctor(ctx, doctorID)
	if err != nil {
		return err
	}

	var avg float64
	if p.AvgResponseHours == nil {
		avg = round2(responseTimeHours)
	} else {
		n := float64(p.TotalCases)
		avg = round2((*p.AvgResponseHours*(n-1) + responseTimeHours) / n)
	}
	p.AvgResponseHours = &avg
	return s.profiles.SaveDoctor(ctx, p)
}

// OnEndorsementAdded counts a peer endorsement of a skill and recomputes
// the accuracy score. While the doctor has no cases the recomputation is
// skipped and the score stays unset.
func (s *StatsService) OnEndorsementAdded(ctx context.Context, doctorID uuid.UUID, skill string) error {
	l := s.doctorLock(doctorID)
	l.Lock()
	defer l.Unlock()

	p, err := s.profiles.EnsureDoctor(ctx, doctorID)
	if err != nil {
		return err
	}

	p.Endorsements[skill]++

	if p.TotalCases > 0 {
		total := 0
		for _, n := range p.Endorsements {
			total += n
		}
		score := math.Min(100, math.Round(float64(total)/float64(p.TotalCases)*50+50))
		p.AccuracyScore = &score
	}
	return s.profiles.SaveDoctor(ctx, p)
}

// Endorse records a peer endorsement. Only a verified doctor may endorse,
// and never themselves.
func (s *StatsService) Endorse(ctx context.Context, targetDoctorID uuid.UUID, skill string, caller *domain.Identity) error {
	if !caller.IsDoctor() || !caller.Verified {
		return ErrForbidden
	}
	if caller.ID == targetDoctorID {
		return ErrForbidden
	}
	skill = strings.ToLower(strings.TrimSpace(skill))
	if skill == "" {
		return profile.ErrInvalidSkill
	}
	return s.OnEndorsementAdded(ctx, targetDoctorID, skill)
}

func (s *StatsService) GetProfile(ctx context.Context, doctorID uuid.UUID) (*profile.DoctorProfile, error) {
	return s.profiles.GetDoctor(ctx, doctorID)
}

// GetActivitySummary derives the contribution graph view: per-day counts
// plus current and longest streaks over the trailing year.
func (s *StatsService) GetActivitySummary(ctx context.Context, doctorID uuid.UUID) (*profile.ActivitySummary, error) {
	p, err := s.profiles.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range p.Activity {
		total += n
	}
	current, longest := profile.Streaks(p.Activity, s.now())

	return &profile.ActivitySummary{
		DoctorID:      doctorID,
		Days:          p.Activity,
		TotalActions:  total,
		CurrentStreak: current,
		LongestStreak: longest,
	}, nil
}

func (s *StatsService) bumpActivityLocked(ctx context.Context, doctorID uuid.UUID) error {
	p, err := s.profiles.EnsureDoctor(ctx, doctorID)
	if err != nil {
		return err
	}
	p.Activity[profile.Day(s.now())]++
	return s.profiles.SaveDoctor(ctx, p)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
