package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/voice-campaign-engine/internal/domain"
	"github.com/acme/voice-campaign-engine/internal/repository"
)

type fakeCampaignRepo struct {
	campaign *domain.Campaign
	paused   *bool
}

func (f *fakeCampaignRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	if f.campaign == nil || f.campaign.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.campaign, nil
}

func (f *fakeCampaignRepo) SetPaused(ctx context.Context, id uuid.UUID, paused bool) error {
	if f.campaign == nil || f.campaign.ID != id {
		return repository.ErrNotFound
	}
	f.paused = &paused
	return nil
}

type fakeTaskRepo struct {
	counts domain.TaskStatusCounts
	tasks  []domain.Task
}

func (f *fakeTaskRepo) ClaimDue(ctx context.Context, limit int, horizon time.Duration) ([]domain.Task, error) {
	return nil, nil
}

func (f *fakeTaskRepo) LoadExecution(ctx context.Context, taskID uuid.UUID) (*repository.TaskExecution, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeTaskRepo) Reschedule(ctx context.Context, taskID uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeTaskRepo) Retry(ctx context.Context, taskID, callLogID uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeTaskRepo) Complete(ctx context.Context, taskID, callLogID uuid.UUID) error { return nil }

func (f *fakeTaskRepo) Fail(ctx context.Context, taskID, callLogID uuid.UUID) error { return nil }

func (f *fakeTaskRepo) ReleaseOrphans(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeTaskRepo) CountByStatus(ctx context.Context, campaignID uuid.UUID) (domain.TaskStatusCounts, error) {
	return f.counts, nil
}

func (f *fakeTaskRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]domain.Task, error) {
	return f.tasks, nil
}

type fakeGate struct {
	active    int64
	activeErr error
	resets    int
}

func (f *fakeGate) Active(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	return f.active, f.activeErr
}

func (f *fakeGate) Reset(ctx context.Context, campaignID uuid.UUID) error {
	f.resets++
	return nil
}

func TestStatusDerivesFromTaskCounts(t *testing.T) {
	campaignID := uuid.New()
	campaigns := &fakeCampaignRepo{campaign: &domain.Campaign{ID: campaignID, Name: "launch"}}
	tasks := &fakeTaskRepo{counts: domain.TaskStatusCounts{Pending: 2, InProgress: 1, Completed: 3}}
	gate := &fakeGate{active: 4}

	svc := NewService(campaigns, tasks, gate)
	report, err := svc.Status(context.Background(), campaignID)
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignStatusInProgress, report.Status)
	assert.Equal(t, int64(4), report.ActiveCalls)
	assert.Equal(t, int64(2), report.Counts.Pending)
}

func TestStatusToleratesGateFailure(t *testing.T) {
	campaignID := uuid.New()
	campaigns := &fakeCampaignRepo{campaign: &domain.Campaign{ID: campaignID}}
	tasks := &fakeTaskRepo{counts: domain.TaskStatusCounts{Completed: 5}}
	gate := &fakeGate{activeErr: errors.New("redis down")}

	svc := NewService(campaigns, tasks, gate)
	report, err := svc.Status(context.Background(), campaignID)
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignStatusCompleted, report.Status)
	assert.Zero(t, report.ActiveCalls)
}

func TestStatusUnknownCampaign(t *testing.T) {
	svc := NewService(&fakeCampaignRepo{}, &fakeTaskRepo{}, &fakeGate{})
	_, err := svc.Status(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPauseResume(t *testing.T) {
	campaignID := uuid.New()
	campaigns := &fakeCampaignRepo{campaign: &domain.Campaign{ID: campaignID}}
	svc := NewService(campaigns, &fakeTaskRepo{}, &fakeGate{})

	require.NoError(t, svc.Pause(context.Background(), campaignID))
	require.NotNil(t, campaigns.paused)
	assert.True(t, *campaigns.paused)

	require.NoError(t, svc.Resume(context.Background(), campaignID))
	assert.False(t, *campaigns.paused)
}

func TestResetConcurrencyRequiresCampaign(t *testing.T) {
	campaignID := uuid.New()
	campaigns := &fakeCampaignRepo{campaign: &domain.Campaign{ID: campaignID}}
	gate := &fakeGate{}
	svc := NewService(campaigns, &fakeTaskRepo{}, gate)

	require.NoError(t, svc.ResetConcurrency(context.Background(), campaignID))
	assert.Equal(t, 1, gate.resets)

	err := svc.ResetConcurrency(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, gate.resets)
}
