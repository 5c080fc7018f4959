package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-engine/internal/domain"
	apperrors "github.com/acme/voice-campaign-engine/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located, or a guarded
	// transition found the row in an unexpected state.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// TaskExecution is the coherent snapshot a worker operates on: the task plus
// its campaign, schedule, and phone number, loaded in a single joined query.
type TaskExecution struct {
	Task        domain.Task
	Campaign    domain.Campaign
	Schedule    domain.Schedule
	PhoneNumber domain.PhoneNumber
}

// TaskRepository is the execution plane's gateway over call task rows. Every
// transition is atomic: a task never leaves in-progress without exactly one
// of a new pending row, a completed terminal, or a failed terminal.
type TaskRepository interface {
	// ClaimDue flips up to limit due pending tasks of unpaused campaigns to
	// in-progress and returns them, ordered by scheduled_at then id. Rows
	// held by concurrent claimers are skipped, which makes the claim the
	// single serialization point across scheduler replicas.
	ClaimDue(ctx context.Context, limit int, horizon time.Duration) ([]domain.Task, error)

	// LoadExecution fetches the joined snapshot for a claimed task.
	LoadExecution(ctx context.Context, taskID uuid.UUID) (*TaskExecution, error)

	// Reschedule returns an in-progress task to pending at the given instant
	// without touching retry_count. Used on concurrency denial.
	Reschedule(ctx context.Context, taskID uuid.UUID, at time.Time) error

	// Retry reschedules after a failed placement: pending at the given
	// instant, retry_count and the campaign's retries_attempted incremented,
	// and the call log closed as failed. One transaction.
	Retry(ctx context.Context, taskID, callLogID uuid.UUID, at time.Time) error

	// Complete commits the success terminal: log completed with ended_at,
	// task completed, campaign completed_tasks incremented. One transaction.
	Complete(ctx context.Context, taskID, callLogID uuid.UUID) error

	// Fail commits the failure terminal: log failed with ended_at, task
	// failed, campaign failed_tasks incremented. One transaction.
	Fail(ctx context.Context, taskID, callLogID uuid.UUID) error

	// ReleaseOrphans returns in-progress tasks older than the threshold to
	// pending without a retry bump, and reports how many were reset.
	ReleaseOrphans(ctx context.Context, olderThan time.Duration) (int64, error)

	// CountByStatus aggregates a campaign's tasks by status in one query.
	CountByStatus(ctx context.Context, campaignID uuid.UUID) (domain.TaskStatusCounts, error)

	// ListByCampaign pages through a campaign's tasks by id cursor.
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]domain.Task, error)
}

// CampaignRepository reads campaign rows and flips the pause flag. The
// execution plane never creates campaigns.
type CampaignRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	SetPaused(ctx context.Context, id uuid.UUID, paused bool) error
}

// CallLogRepository writes the audit trail of placement attempts. Terminal
// log updates ride inside the task transition transactions; Create and
// SetExternalCallID are the only standalone writes.
type CallLogRepository interface {
	Create(ctx context.Context, log *domain.CallLog) error
	SetExternalCallID(ctx context.Context, logID uuid.UUID, externalCallID string) error
	ListByTask(ctx context.Context, taskID uuid.UUID, limit int) ([]domain.CallLog, error)
}

// AttemptEventStore appends per-attempt events to the wide-column store.
type AttemptEventStore interface {
	Append(ctx context.Context, event domain.CallAttemptEvent) error
	ListByTask(ctx context.Context, taskID uuid.UUID, limit int) ([]domain.CallAttemptEvent, error)
}
