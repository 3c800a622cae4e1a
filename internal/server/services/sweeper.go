package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// ErrSweepInProgress is returned when a sweep is requested while another
// one is still running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Sweeper periodically deactivates refresh tokens past their expiry.
// Rows are kept for audit.
type Sweeper struct {
	repo     refreshtokens.Repository
	interval time.Duration
	clock    timex.Clock
	logger   logging.Logger
	metrics  *metrics.Metrics

	running atomic.Bool
}

func NewSweeper(repo refreshtokens.Repository, interval time.Duration, clock timex.Clock, logger logging.Logger, m *metrics.Metrics) *Sweeper {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		repo:     repo,
		interval: interval,
		clock:    clock,
		logger:   logger.With("module", "sweeper"),
		metrics:  m,
	}
}

// SweepExpired runs one cycle and returns how many rows it deactivated.
// Overlapping calls are skipped with ErrSweepInProgress.
func (s *Sweeper) SweepExpired(ctx context.Context) (int64, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn(ctx, "sweep skipped, previous run still in progress")
		s.metrics.SweepRun(metrics.SweepSkipped, 0)
		return 0, ErrSweepInProgress
	}
	defer s.running.Store(false)

	n, err := s.repo.BulkExpire(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
		s.metrics.SweepRun(metrics.SweepError, 0)
		return 0, err
	}

	s.logger.Info(ctx, "sweep finished", "revoked", n)
	s.metrics.SweepRun(metrics.SweepOK, n)
	return n, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Failures are logged and retried at the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, _ = s.SweepExpired(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}
