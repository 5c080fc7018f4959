package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus enumerates the lifecycle of a call task. The canonical in-flight
// value is "in-progress" (hyphen), matching the database schema.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is sticky.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// PhoneNumberStatus enumerates dialability of a phone number.
type PhoneNumberStatus string

const (
	PhoneNumberStatusValid     PhoneNumberStatus = "valid"
	PhoneNumberStatusInvalid   PhoneNumberStatus = "invalid"
	PhoneNumberStatusDoNotCall PhoneNumberStatus = "do_not_call"
)

// PhoneNumber is a user-owned dialable number. (user_id, number) is unique.
type PhoneNumber struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Number    string
	Status    PhoneNumberStatus
	CreatedAt time.Time
}

// Task is the per-phone-number unit of work within a campaign. A task in
// "in-progress" is either held by a worker or orphaned; the sweeper returns
// orphans to pending. retry_count counts completed attempts that failed, so
// a concurrency-denial reschedule never bumps it.
type Task struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	CampaignID    uuid.UUID
	PhoneNumberID uuid.UUID
	Status        TaskStatus
	ScheduledAt   time.Time
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CallLogStatus enumerates stages of a single placement attempt.
type CallLogStatus string

const (
	CallLogStatusInitiated  CallLogStatus = "initiated"
	CallLogStatusInProgress CallLogStatus = "in-progress"
	CallLogStatusCompleted  CallLogStatus = "completed"
	CallLogStatusFailed     CallLogStatus = "failed"
)

// CallLog is the audit record of one placement attempt. At most one
// non-terminal log exists per task at a time.
type CallLog struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CallTaskID     uuid.UUID
	PhoneNumberID  uuid.UUID
	DialedNumber   string
	ExternalCallID string
	Status         CallLogStatus
	StartedAt      time.Time
	EndedAt        *time.Time
}

// CallAttemptEvent is the append-only per-attempt record kept in the event
// store for observability.
type CallAttemptEvent struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	CallLogID  uuid.UUID
	CampaignID uuid.UUID
	Attempt    int
	Status     CallLogStatus
	Error      string
	Duration   time.Duration
	OccurredAt time.Time
}
