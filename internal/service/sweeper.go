package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Sweeper periodically expires lapsed access grants. Approval alone does
// not guarantee a later read will trigger a lazy expiry re-check, so the
// sweep runs on its own schedule regardless of traffic.
type Sweeper struct {
	access   *AccessService
	interval time.Duration
	log      *zap.Logger

	// Expired, when set, counts grants transitioned by the sweep.
	Expired prometheus.Counter
}

func NewSweeper(access *AccessService, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{access: access, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. One sweep fires immediately on start
// so grants that lapsed while the process was down are not left approved
// for a full interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grant sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := s.access.SweepExpired(sweepCtx, time.Now())
	if err != nil {
		s.log.Error("grant sweep failed", zap.Error(err))
		return
	}
	if s.Expired != nil && count > 0 {
		s.Expired.Add(float64(count))
	}
}
