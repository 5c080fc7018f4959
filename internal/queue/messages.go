package queue

import (
	"time"

	"github.com/google/uuid"
)

// TaskMessage carries a claimed task id from the scheduler to the workers.
// The task row itself is the source of truth; the message is only a handle,
// so a stale message is harmless (the worker re-reads the row and acks).
type TaskMessage struct {
	TaskID     uuid.UUID `json:"task_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// OutcomeEvent reports the result of one placement attempt to external
// consumers.
type OutcomeEvent struct {
	TaskID         uuid.UUID  `json:"task_id"`
	CampaignID     uuid.UUID  `json:"campaign_id"`
	CallLogID      uuid.UUID  `json:"call_log_id"`
	ExternalCallID string     `json:"external_call_id,omitempty"`
	Outcome        string     `json:"outcome"`
	Attempt        int        `json:"attempt"`
	RetryCount     int        `json:"retry_count"`
	Error          string     `json:"error,omitempty"`
	DurationMs     int64      `json:"duration_ms,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Worker outcome identifiers carried in OutcomeEvent.Outcome.
const (
	OutcomeCompleted       = "completed"
	OutcomeRetryScheduled  = "retry-scheduled"
	OutcomeFailed          = "failed"
	OutcomeConcurrencyDeny = "concurrency-deny"
	OutcomeOrphaned        = "orphaned"
)
