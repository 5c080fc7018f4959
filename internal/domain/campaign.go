package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the derived lifecycle state of a campaign. It is computed
// on demand from task rows and never stored.
type CampaignStatus string

const (
	CampaignStatusPaused     CampaignStatus = "paused"
	CampaignStatusInProgress CampaignStatus = "in-progress"
	CampaignStatusCompleted  CampaignStatus = "completed"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// Campaign groups phone numbers under a shared schedule and execution
// parameters. Counters are monotonically non-decreasing.
type Campaign struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	ScheduleID         uuid.UUID
	Name               string
	IsPaused           bool
	MaxConcurrentCalls int
	MaxRetries         int
	RetryDelay         time.Duration
	TotalTasks         int64
	CompletedTasks     int64
	FailedTasks        int64
	RetriesAttempted   int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TaskStatusCounts aggregates a campaign's tasks by status.
type TaskStatusCounts struct {
	Pending    int64
	InProgress int64
	Completed  int64
	Failed     int64
}

// Total counts tasks across all states.
func (c TaskStatusCounts) Total() int64 {
	return c.Pending + c.InProgress + c.Completed + c.Failed
}

// DeriveCampaignStatus computes the campaign status from the pause flag and
// task counts. Precedence: paused, failed, in-progress, completed. A single
// failed task marks the whole campaign failed even while others are in
// flight (fail-visible).
func DeriveCampaignStatus(isPaused bool, counts TaskStatusCounts) CampaignStatus {
	switch {
	case isPaused:
		return CampaignStatusPaused
	case counts.Total() == 0:
		return CampaignStatusPaused
	case counts.Failed > 0:
		return CampaignStatusFailed
	case counts.Pending > 0 || counts.InProgress > 0:
		return CampaignStatusInProgress
	case counts.Completed == counts.Total():
		return CampaignStatusCompleted
	default:
		return CampaignStatusPaused
	}
}
