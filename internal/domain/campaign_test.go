package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveCampaignStatus(t *testing.T) {
	cases := []struct {
		name   string
		paused bool
		counts TaskStatusCounts
		want   CampaignStatus
	}{
		{"paused wins over everything", true, TaskStatusCounts{Failed: 3, Pending: 2}, CampaignStatusPaused},
		{"no tasks yet", false, TaskStatusCounts{}, CampaignStatusPaused},
		{"any failure is visible", false, TaskStatusCounts{Completed: 9, Failed: 1, Pending: 5}, CampaignStatusFailed},
		{"pending work", false, TaskStatusCounts{Completed: 2, Pending: 1}, CampaignStatusInProgress},
		{"claimed work", false, TaskStatusCounts{Completed: 2, InProgress: 1}, CampaignStatusInProgress},
		{"all done", false, TaskStatusCounts{Completed: 4}, CampaignStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveCampaignStatus(tc.paused, tc.counts))
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusInProgress.Terminal())
}
