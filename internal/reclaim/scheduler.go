package reclaim

import (
	"context"
	"time"

	"reservationservice/internal/platform/observability"

	"go.uber.org/zap"
)

// Scheduler runs the reclaimer on a fixed interval until its context is cancelled.
type Scheduler struct {
	reclaimer *Reclaimer
	logger    observability.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	timeout   time.Duration
}

// NewScheduler creates a scheduler. A non-positive timeout falls back to the interval.
func NewScheduler(reclaimer *Reclaimer, logger observability.Logger, metrics *observability.Metrics, interval, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = interval
	}
	return &Scheduler{
		reclaimer: reclaimer,
		logger:    logger,
		metrics:   metrics,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start blocks, reclaiming once per tick. A failed tick is logged and counted and
// the next one runs as usual.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Reclaim scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reclaim scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.reclaimer.ReclaimExpired(tickCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.ReclaimFailed(ctx)
		s.logger.Error("Reclaim cycle failed", zap.Error(err))
	}
}
