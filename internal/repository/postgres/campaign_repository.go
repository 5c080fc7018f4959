package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-campaign-engine/internal/domain"
	"github.com/acme/voice-campaign-engine/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using
// PostgreSQL. The execution plane only reads campaigns and toggles the pause
// flag; creation belongs to the API surface.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT id, user_id, schedule_id, name, is_paused,
			max_concurrent_calls, max_retries, retry_delay_seconds,
			total_tasks, completed_tasks, failed_tasks, retries_attempted,
			created_at, updated_at
		FROM campaigns WHERE id = $1`, id)

	var rec campaignRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := rec.toDomain()
	return &campaign, nil
}

// SetPaused flips the pause flag.
func (r *CampaignRepository) SetPaused(ctx context.Context, id uuid.UUID, paused bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET is_paused = $1, updated_at = NOW() WHERE id = $2`, paused, id)
	if err != nil {
		return fmt.Errorf("campaign repo: set paused: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type campaignRecord struct {
	ID                uuid.UUID    `db:"id"`
	UserID            uuid.UUID    `db:"user_id"`
	ScheduleID        uuid.UUID    `db:"schedule_id"`
	Name              string       `db:"name"`
	IsPaused          bool         `db:"is_paused"`
	MaxConcurrent     int          `db:"max_concurrent_calls"`
	MaxRetries        int          `db:"max_retries"`
	RetryDelaySeconds int          `db:"retry_delay_seconds"`
	TotalTasks        int64        `db:"total_tasks"`
	CompletedTasks    int64        `db:"completed_tasks"`
	FailedTasks       int64        `db:"failed_tasks"`
	RetriesAttempted  int64        `db:"retries_attempted"`
	CreatedAt         sql.NullTime `db:"created_at"`
	UpdatedAt         sql.NullTime `db:"updated_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	return domain.Campaign{
		ID:                 r.ID,
		UserID:             r.UserID,
		ScheduleID:         r.ScheduleID,
		Name:               r.Name,
		IsPaused:           r.IsPaused,
		MaxConcurrentCalls: r.MaxConcurrent,
		MaxRetries:         r.MaxRetries,
		RetryDelay:         time.Duration(r.RetryDelaySeconds) * time.Second,
		TotalTasks:         r.TotalTasks,
		CompletedTasks:     r.CompletedTasks,
		FailedTasks:        r.FailedTasks,
		RetriesAttempted:   r.RetriesAttempted,
		CreatedAt:          r.CreatedAt.Time,
		UpdatedAt:          r.UpdatedAt.Time,
	}
}
