package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-engine/internal/domain"
	"github.com/acme/voice-campaign-engine/internal/repository"
)

// ConcurrencyGate is the slice of the gate the service needs: reading the
// active counter and clearing it.
type ConcurrencyGate interface {
	Active(ctx context.Context, campaignID uuid.UUID) (int64, error)
	Reset(ctx context.Context, campaignID uuid.UUID) error
}

// Service exposes the execution-plane view of campaigns: derived status,
// pause control, and the concurrency-counter remedy. It never creates
// campaign rows.
type Service struct {
	campaigns repository.CampaignRepository
	tasks     repository.TaskRepository
	limiter   ConcurrencyGate
}

// NewService builds the campaign service.
func NewService(campaigns repository.CampaignRepository, tasks repository.TaskRepository, limiter ConcurrencyGate) *Service {
	return &Service{campaigns: campaigns, tasks: tasks, limiter: limiter}
}

// StatusReport is the derived campaign state plus the counts it came from.
type StatusReport struct {
	Campaign    *domain.Campaign
	Status      domain.CampaignStatus
	Counts      domain.TaskStatusCounts
	ActiveCalls int64
}

// Status derives the campaign status from durable task state. The status is
// never stored; pausing, retries, and partial failures all fold into one
// read.
func (s *Service) Status(ctx context.Context, campaignID uuid.UUID) (*StatusReport, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	counts, err := s.tasks.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign service: count tasks: %w", err)
	}

	active, err := s.limiter.Active(ctx, campaignID)
	if err != nil {
		// the gate is advisory for the report; the derived status stands
		active = 0
	}

	return &StatusReport{
		Campaign:    campaign,
		Status:      domain.DeriveCampaignStatus(campaign.IsPaused, counts),
		Counts:      counts,
		ActiveCalls: active,
	}, nil
}

// Pause stops the scheduler from claiming the campaign's tasks. In-flight
// workers drain on their own.
func (s *Service) Pause(ctx context.Context, campaignID uuid.UUID) error {
	return s.campaigns.SetPaused(ctx, campaignID, true)
}

// Resume re-enables claiming.
func (s *Service) Resume(ctx context.Context, campaignID uuid.UUID) error {
	return s.campaigns.SetPaused(ctx, campaignID, false)
}

// ResetConcurrency clears the campaign's gate counter. Operator action for
// drift left by workers that died between acquire and release.
func (s *Service) ResetConcurrency(ctx context.Context, campaignID uuid.UUID) error {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return err
	}
	return s.limiter.Reset(ctx, campaignID)
}

// ListTasks pages through the campaign's tasks.
func (s *Service) ListTasks(ctx context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]domain.Task, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.tasks.ListByCampaign(ctx, campaignID, afterID, limit)
}
