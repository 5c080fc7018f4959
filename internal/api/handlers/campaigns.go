package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

type campaignStatusResponse struct {
	ID               uuid.UUID             `json:"id"`
	Name             string                `json:"name"`
	Status           domain.CampaignStatus `json:"status"`
	IsPaused         bool                  `json:"is_paused"`
	PendingTasks     int64                 `json:"pending_tasks"`
	InProgressTasks  int64                 `json:"in_progress_tasks"`
	CompletedTasks   int64                 `json:"completed_tasks"`
	FailedTasks      int64                 `json:"failed_tasks"`
	RetriesAttempted int64                 `json:"retries_attempted"`
	ActiveCalls      int64                 `json:"active_calls"`
}

type taskResponse struct {
	ID            uuid.UUID         `json:"id"`
	PhoneNumberID uuid.UUID         `json:"phone_number_id"`
	Status        domain.TaskStatus `json:"status"`
	ScheduledAt   time.Time         `json:"scheduled_at"`
	RetryCount    int               `json:"retry_count"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (h *HandlerSet) campaignStatus(ctx *fiber.Ctx) error {
	id, err := parseID(ctx)
	if err != nil {
		return err
	}

	report, err := h.campaigns.Status(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.JSON(campaignStatusResponse{
		ID:               report.Campaign.ID,
		Name:             report.Campaign.Name,
		Status:           report.Status,
		IsPaused:         report.Campaign.IsPaused,
		PendingTasks:     report.Counts.Pending,
		InProgressTasks:  report.Counts.InProgress,
		CompletedTasks:   report.Counts.Completed,
		FailedTasks:      report.Counts.Failed,
		RetriesAttempted: report.Campaign.RetriesAttempted,
		ActiveCalls:      report.ActiveCalls,
	})
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := parseID(ctx)
	if err != nil {
		return err
	}
	if err := h.campaigns.Pause(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) resumeCampaign(ctx *fiber.Ctx) error {
	id, err := parseID(ctx)
	if err != nil {
		return err
	}
	if err := h.campaigns.Resume(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) resetConcurrency(ctx *fiber.Ctx) error {
	id, err := parseID(ctx)
	if err != nil {
		return err
	}
	if err := h.campaigns.ResetConcurrency(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) listTasks(ctx *fiber.Ctx) error {
	id, err := parseID(ctx)
	if err != nil {
		return err
	}

	limit := 100
	if raw := ctx.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	var afterID *uuid.UUID
	if raw := ctx.Query("after"); raw != "" {
		cursor, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid after cursor")
		}
		afterID = &cursor
	}

	tasks, err := h.campaigns.ListTasks(ctx.Context(), id, afterID, limit)
	if err != nil {
		return translateError(err)
	}

	items := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskResponse{
			ID:            task.ID,
			PhoneNumberID: task.PhoneNumberID,
			Status:        task.Status,
			ScheduledAt:   task.ScheduledAt,
			RetryCount:    task.RetryCount,
			UpdatedAt:     task.UpdatedAt,
		})
	}

	return ctx.JSON(fiber.Map{"tasks": items})
}

func parseID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	return id, nil
}
