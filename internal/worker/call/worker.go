package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/acme/voice-campaign-engine/internal/app"
	"github.com/acme/voice-campaign-engine/internal/domain"
	"github.com/acme/voice-campaign-engine/internal/queue"
	"github.com/acme/voice-campaign-engine/internal/repository"
	"github.com/acme/voice-campaign-engine/internal/schedule"
	"github.com/acme/voice-campaign-engine/internal/telephony"
)

// Pool consumes dispatched task ids and drives each task from in-progress to
// a terminal state or back to pending. Per-host throughput is capped by a
// token bucket; per-campaign parallelism by the Redis gate.
type Pool struct {
	container *app.Container
	rate      *rate.Limiter
}

// NewPool creates a worker pool.
func NewPool(container *app.Container) *Pool {
	perMinute := container.Config.Worker.RatePerMinute
	if perMinute <= 0 {
		perMinute = 50
	}
	return &Pool{
		container: container,
		rate:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Run starts the workers and blocks until the context is cancelled. Each
// worker owns its reader; the consumer group spreads partitions across them.
func (p *Pool) Run(ctx context.Context) error {
	cfg := p.container.Config
	count := cfg.Worker.Count
	if count <= 0 {
		count = 50
	}

	p.container.Logger.Info("worker pool: starting",
		zap.Int("workers", count),
		zap.Int("rate_per_minute", cfg.Worker.RatePerMinute),
		zap.String("topic", cfg.Kafka.DispatchTopic))

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.consume(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	p.container.Logger.Info("worker pool: drained")
	return ctx.Err()
}

func (p *Pool) consume(ctx context.Context, workerID int) {
	cfg := p.container.Config
	reader := p.container.Kafka.NewReader(cfg.Kafka.DispatchTopic, cfg.Kafka.ConsumerGroupID)
	defer reader.Close()

	logger := p.container.Logger

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("worker: fetch message", zap.Int("worker", workerID), zap.Error(err))
			continue
		}

		if err := p.processMessage(ctx, reader, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("worker: process", zap.Int("worker", workerID), zap.Error(err))
		}
	}
}

// processMessage executes the task with bounded retry for infrastructure
// errors. Application outcomes (place failure, orphan, denial) are handled
// inside executeTask and never retried here. Exhausted messages go to the
// dead-letter topic; the task row stays in-progress for the sweeper.
func (p *Pool) processMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message) error {
	var msg queue.TaskMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		_ = reader.CommitMessages(ctx, m)
		return fmt.Errorf("unmarshal task message: %w", err)
	}

	cfg := p.container.Config
	maxRetries := cfg.Queue.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = p.executeTask(ctx, msg)
		if lastErr == nil {
			return reader.CommitMessages(ctx, m)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff := queue.RetryBackoff(cfg.Queue.RetryBaseDelay, attempt)
		p.container.Logger.Warn("worker: infrastructure error, backing off",
			zap.String("task_id", msg.TaskID.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	if err := p.container.Dispatchers().DeadLetter.Publish(ctx, m, lastErr); err != nil {
		return fmt.Errorf("dead letter after %d attempts: %w (original: %v)", maxRetries, err, lastErr)
	}
	p.container.Logger.Error("worker: message dead-lettered",
		zap.String("task_id", msg.TaskID.String()),
		zap.Error(lastErr))
	return reader.CommitMessages(ctx, m)
}

// executeTask runs the per-task state machine. A nil return means the
// message is settled; a non-nil return is an infrastructure error worth
// retrying.
func (p *Pool) executeTask(ctx context.Context, msg queue.TaskMessage) error {
	tracer := otel.Tracer("outbound.worker")
	sctx, span := tracer.Start(ctx, "worker.task", trace.WithAttributes(
		attribute.String("task.id", msg.TaskID.String()),
		attribute.String("campaign.id", msg.CampaignID.String()),
	))
	defer span.End()

	logger := p.container.Logger
	repos := p.container.Repositories()
	dispatcher := p.container.Dispatchers().Tasks

	if err := p.rate.Wait(sctx); err != nil {
		return err
	}

	// LOAD
	exec, err := repos.Tasks.LoadExecution(sctx, msg.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("worker: task gone, acking", zap.String("task_id", msg.TaskID.String()))
		_ = dispatcher.ClearDedup(sctx, msg.TaskID)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	if exec.Task.Status != domain.TaskStatusInProgress {
		// terminal states are sticky and a reset row will be re-claimed
		logger.Warn("worker: task not held, acking",
			zap.String("task_id", msg.TaskID.String()),
			zap.String("status", string(exec.Task.Status)))
		_ = dispatcher.ClearDedup(sctx, msg.TaskID)
		return nil
	}

	now := time.Now().UTC()

	if exec.Campaign.IsPaused {
		// paused after claim; hand the task back without a retry bump
		nextAt := nextAttemptAt(exec.Schedule.Rules, exec.Schedule.TimeZone, now, 0)
		if err := repos.Tasks.Reschedule(sctx, msg.TaskID, nextAt); err != nil && !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
			return err
		}
		_ = dispatcher.ClearDedup(sctx, msg.TaskID)
		return nil
	}

	// GATE
	gate := p.container.Limiters().Concurrency
	acquired, err := gate.TryAcquire(sctx, exec.Campaign.ID, exec.Campaign.MaxConcurrentCalls)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !acquired {
		nextAt := nextAttemptAt(exec.Schedule.Rules, exec.Schedule.TimeZone, now, 0)
		span.SetAttributes(attribute.Bool("concurrency.denied", true))
		logger.Info("worker: concurrency denied, rescheduling",
			zap.String("task_id", msg.TaskID.String()),
			zap.String("campaign_id", exec.Campaign.ID.String()),
			zap.Time("next_attempt", nextAt))
		if err := repos.Tasks.Reschedule(sctx, msg.TaskID, nextAt); err != nil && !errors.Is(err, repository.ErrNotFound) {
			span.RecordError(err)
			return err
		}
		p.publishOutcome(sctx, exec, uuid.Nil, queue.OutcomeConcurrencyDeny, "", 0, &nextAt)
		_ = dispatcher.ClearDedup(sctx, msg.TaskID)
		return nil
	}
	defer func() {
		// release on every exit path after a successful acquire
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gate.Release(releaseCtx, exec.Campaign.ID); err != nil {
			logger.Warn("worker: release slot", zap.Error(err))
		}
	}()

	return p.placeAndCommit(sctx, exec, msg)
}

func (p *Pool) placeAndCommit(ctx context.Context, exec *repository.TaskExecution, msg queue.TaskMessage) error {
	cfg := p.container.Config
	logger := p.container.Logger
	repos := p.container.Repositories()
	dispatcher := p.container.Dispatchers().Tasks
	span := trace.SpanFromContext(ctx)

	now := time.Now().UTC()
	attempt := exec.Task.RetryCount + 1

	// LOG
	callLog := &domain.CallLog{
		ID:             uuid.New(),
		UserID:         exec.Task.UserID,
		CallTaskID:     exec.Task.ID,
		PhoneNumberID:  exec.PhoneNumber.ID,
		DialedNumber:   exec.PhoneNumber.Number,
		ExternalCallID: "pending-" + uuid.NewString(),
		Status:         domain.CallLogStatusInitiated,
		StartedAt:      now,
	}
	if err := repos.CallLogs.Create(ctx, callLog); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Info("worker: placing call",
		zap.String("task_id", exec.Task.ID.String()),
		zap.String("call_log_id", callLog.ID.String()),
		zap.Int("attempt", attempt))

	// PLACE
	timeout := cfg.Telephony.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	placeCtx, cancel := context.WithTimeout(ctx, timeout)
	result, placeErr := p.container.Providers().Telephony.Place(placeCtx, telephony.PlacementRequest{
		CallLogID:    callLog.ID.String(),
		DialedNumber: callLog.DialedNumber,
	})
	cancel()

	if result.ExternalCallID != "" {
		if err := repos.CallLogs.SetExternalCallID(ctx, callLog.ID, result.ExternalCallID); err != nil {
			logger.Warn("worker: record external call id", zap.Error(err))
		}
	}

	succeeded := placeErr == nil && result.Succeeded
	failureReason := result.Error
	if placeErr != nil && failureReason == "" {
		failureReason = placeErr.Error()
	}

	if succeeded {
		if err := repos.Tasks.Complete(ctx, exec.Task.ID, callLog.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// the claim was lost (sweeper reset); the next holder redoes it
				logger.Warn("worker: claim lost before completion", zap.String("task_id", exec.Task.ID.String()))
				_ = dispatcher.ClearDedup(ctx, exec.Task.ID)
				return nil
			}
			span.RecordError(err)
			return err
		}
		logger.Info("worker: call completed",
			zap.String("task_id", exec.Task.ID.String()),
			zap.Duration("duration", result.Duration))
		p.appendAttemptEvent(ctx, exec, callLog.ID, attempt, domain.CallLogStatusCompleted, "", result.Duration)
		p.publishOutcome(ctx, exec, callLog.ID, queue.OutcomeCompleted, "", result.Duration, nil)
		_ = dispatcher.ClearDedup(ctx, exec.Task.ID)
		return nil
	}

	// place failure: bounded retry, then terminal failed
	if shouldRetry(exec.Task.RetryCount, exec.Campaign.MaxRetries) {
		nextAt := nextAttemptAt(exec.Schedule.Rules, exec.Schedule.TimeZone, time.Now().UTC(), exec.Campaign.RetryDelay)
		if err := repos.Tasks.Retry(ctx, exec.Task.ID, callLog.ID, nextAt); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				logger.Warn("worker: claim lost before retry", zap.String("task_id", exec.Task.ID.String()))
				_ = dispatcher.ClearDedup(ctx, exec.Task.ID)
				return nil
			}
			span.RecordError(err)
			return err
		}
		logger.Info("worker: place failed, retry scheduled",
			zap.String("task_id", exec.Task.ID.String()),
			zap.Int("retry_count", exec.Task.RetryCount+1),
			zap.Time("next_attempt", nextAt),
			zap.String("reason", failureReason))
		p.appendAttemptEvent(ctx, exec, callLog.ID, attempt, domain.CallLogStatusFailed, failureReason, result.Duration)
		p.publishOutcome(ctx, exec, callLog.ID, queue.OutcomeRetryScheduled, failureReason, result.Duration, &nextAt)
		_ = dispatcher.ClearDedup(ctx, exec.Task.ID)
		return nil
	}

	if err := repos.Tasks.Fail(ctx, exec.Task.ID, callLog.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("worker: claim lost before failure", zap.String("task_id", exec.Task.ID.String()))
			_ = dispatcher.ClearDedup(ctx, exec.Task.ID)
			return nil
		}
		span.RecordError(err)
		return err
	}
	logger.Info("worker: task failed terminally",
		zap.String("task_id", exec.Task.ID.String()),
		zap.Int("retry_count", exec.Task.RetryCount),
		zap.String("reason", failureReason))
	p.appendAttemptEvent(ctx, exec, callLog.ID, attempt, domain.CallLogStatusFailed, failureReason, result.Duration)
	p.publishOutcome(ctx, exec, callLog.ID, queue.OutcomeFailed, failureReason, result.Duration, nil)
	_ = dispatcher.ClearDedup(ctx, exec.Task.ID)
	return nil
}

func (p *Pool) appendAttemptEvent(ctx context.Context, exec *repository.TaskExecution, logID uuid.UUID, attempt int, status domain.CallLogStatus, reason string, duration time.Duration) {
	event := domain.CallAttemptEvent{
		ID:         uuid.New(),
		TaskID:     exec.Task.ID,
		CallLogID:  logID,
		CampaignID: exec.Campaign.ID,
		Attempt:    attempt,
		Status:     status,
		Error:      reason,
		Duration:   duration,
		OccurredAt: time.Now().UTC(),
	}
	if err := p.container.Repositories().Events.Append(ctx, event); err != nil {
		p.container.Logger.Warn("worker: append attempt event", zap.Error(err))
	}
}

func (p *Pool) publishOutcome(ctx context.Context, exec *repository.TaskExecution, logID uuid.UUID, outcome, reason string, duration time.Duration, nextAt *time.Time) {
	event := queue.OutcomeEvent{
		TaskID:        exec.Task.ID,
		CampaignID:    exec.Campaign.ID,
		CallLogID:     logID,
		Outcome:       outcome,
		Attempt:       exec.Task.RetryCount + 1,
		RetryCount:    exec.Task.RetryCount,
		Error:         reason,
		DurationMs:    duration.Milliseconds(),
		NextAttemptAt: nextAt,
		OccurredAt:    time.Now().UTC(),
	}
	if err := p.container.Dispatchers().Outcomes.Publish(ctx, event); err != nil {
		p.container.Logger.Warn("worker: publish outcome", zap.Error(err))
	}
}

// shouldRetry reports whether a failed placement leaves retry budget.
// retryCount counts completed attempts that failed, so a task with
// max_retries=N fails terminally on attempt N+1.
func shouldRetry(retryCount, maxRetries int) bool {
	return retryCount < maxRetries
}

// nextAttemptAt computes when the task may run again. delay is the
// campaign's retry_delay_seconds for place-failure retries and zero for
// concurrency denials; the next slot is searched from now+delay so the
// delay is honored inside the business-hours window. Malformed rules fall
// back to a flat delay rather than hot-looping the task.
func nextAttemptAt(rules domain.ScheduleRules, timeZone string, now time.Time, delay time.Duration) time.Time {
	from := now.Add(delay)
	if at, ok := schedule.NextValid(rules, timeZone, from); ok {
		return at
	}
	if delay <= 0 {
		delay = time.Minute
	}
	return now.Add(delay)
}
