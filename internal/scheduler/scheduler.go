package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/acme/voice-campaign-engine/internal/app"
)

// Scheduler periodically claims due tasks and hands them to the workers.
// Replicas are safe: the atomic claim in the task repository is the
// serialization point, so correctness never depends on singleton scheduling.
type Scheduler struct {
	container *app.Container
}

// New constructs a scheduler.
func New(container *app.Container) *Scheduler {
	return &Scheduler{container: container}
}

// Run executes the scheduling loop until cancelled. Polling stops after the
// tick in flight completes; claimed tasks drain through the workers.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.container.Config
	interval := cfg.Scheduler.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil && ctx.Err() == nil {
			s.container.Logger.Error("scheduler: tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.container.Logger.Info("scheduler: polling stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	cfg := s.container.Config
	logger := s.container.Logger

	tracer := otel.Tracer("outbound.scheduler")
	sctx, span := tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	batchSize := cfg.Scheduler.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	horizon := s.horizon()

	tasks, err := s.container.Repositories().Tasks.ClaimDue(sctx, batchSize, horizon)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("claim.count", len(tasks)))

	if len(tasks) == 0 {
		logger.Debug("scheduler: tick, nothing due")
		return nil
	}

	enqueued, err := s.container.Dispatchers().Tasks.EnqueueTasks(sctx, tasks)
	if err != nil {
		span.RecordError(err)
		// claimed rows stay in-progress; the sweeper returns them to pending
		return err
	}

	logger.Info("scheduler: claimed batch",
		zap.Int("claimed", len(tasks)),
		zap.Int("enqueued", enqueued),
		zap.Duration("horizon", horizon))
	return nil
}

// horizon is the claim look-ahead: one tick plus a margin, so a task whose
// scheduled_at lands between ticks is picked up by the earlier one.
func (s *Scheduler) horizon() time.Duration {
	cfg := s.container.Config
	interval := cfg.Scheduler.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	lookAhead := cfg.Scheduler.LookAhead
	if lookAhead <= 0 {
		lookAhead = time.Minute
	}
	return interval + lookAhead
}
