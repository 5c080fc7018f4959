package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/acme/voice-campaign-engine/internal/app"
)

// Sweeper returns orphaned tasks to pending. A task stuck in in-progress
// past the threshold means the worker that claimed it died between claim and
// commit; the reset does not bump retry_count because no attempt completed.
type Sweeper struct {
	container *app.Container
}

// NewSweeper constructs a sweeper.
func NewSweeper(container *app.Container) *Sweeper {
	return &Sweeper{container: container}
}

// Run sweeps on an interval until cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	cfg := s.container.Config
	interval := cfg.Scheduler.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	threshold := cfg.Scheduler.OrphanThreshold
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := s.container.Repositories().Tasks.ReleaseOrphans(ctx, threshold)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.container.Logger.Error("sweeper: release orphans", zap.Error(err))
			continue
		}
		if n > 0 {
			s.container.Logger.Warn("sweeper: reset orphaned tasks",
				zap.Int64("count", n),
				zap.Duration("threshold", threshold))
		}
	}
}
