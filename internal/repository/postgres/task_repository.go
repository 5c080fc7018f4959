package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-campaign-engine/internal/domain"
	"github.com/acme/voice-campaign-engine/internal/repository"
)

// TaskRepository implements repository.TaskRepository using PostgreSQL.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// ClaimDue atomically claims due pending tasks. FOR UPDATE SKIP LOCKED makes
// concurrent claimers skip each other's rows, so at most one scheduler
// transitions any task to in-progress.
func (r *TaskRepository) ClaimDue(ctx context.Context, limit int, horizon time.Duration) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().UTC().Add(horizon)

	rows, err := r.db.QueryxContext(ctx, `UPDATE call_tasks SET status = 'in-progress', updated_at = NOW()
		WHERE id IN (
			SELECT t.id FROM call_tasks t
			JOIN campaigns c ON c.id = t.campaign_id
			WHERE t.status = 'pending'
			  AND c.is_paused = FALSE
			  AND t.scheduled_at <= $1
			ORDER BY t.scheduled_at ASC, t.id ASC
			LIMIT $2
			FOR UPDATE OF t SKIP LOCKED
		)
		RETURNING id, user_id, campaign_id, phone_number_id, status, scheduled_at, retry_count, created_at, updated_at`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("task repo: claim due: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var rec taskRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("task repo: scan: %w", err)
		}
		tasks = append(tasks, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task repo: rows err: %w", err)
	}

	// UPDATE ... RETURNING does not preserve the subquery ordering.
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].ScheduledAt.Equal(tasks[j].ScheduledAt) {
			return tasks[i].ID.String() < tasks[j].ID.String()
		}
		return tasks[i].ScheduledAt.Before(tasks[j].ScheduledAt)
	})

	return tasks, nil
}

// LoadExecution fetches the task with its campaign, schedule, and phone
// number in one query so the worker sees a coherent snapshot.
func (r *TaskRepository) LoadExecution(ctx context.Context, taskID uuid.UUID) (*repository.TaskExecution, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT
			t.id AS task_id, t.user_id, t.campaign_id, t.phone_number_id,
			t.status AS task_status, t.scheduled_at, t.retry_count, t.created_at AS task_created_at, t.updated_at AS task_updated_at,
			c.schedule_id, c.name AS campaign_name, c.is_paused, c.max_concurrent_calls, c.max_retries, c.retry_delay_seconds,
			c.total_tasks, c.completed_tasks, c.failed_tasks, c.retries_attempted,
			s.time_zone, s.schedule_rules,
			p.number AS phone_number, p.status AS phone_status
		FROM call_tasks t
		JOIN campaigns c ON c.id = t.campaign_id
		JOIN schedules s ON s.id = c.schedule_id
		JOIN phone_numbers p ON p.id = t.phone_number_id
		WHERE t.id = $1`, taskID)

	var rec executionRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("task repo: load execution: %w", err)
	}
	return rec.toModel()
}

// Reschedule returns an in-progress task to pending without a retry bump.
func (r *TaskRepository) Reschedule(ctx context.Context, taskID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE call_tasks
		SET status = 'pending', scheduled_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'in-progress'`, taskID, at.UTC())
	if err != nil {
		return fmt.Errorf("task repo: reschedule: %w", err)
	}
	return requireRow(res)
}

// Retry reschedules after a failed placement and bumps retry counters.
func (r *TaskRepository) Retry(ctx context.Context, taskID, callLogID uuid.UUID, at time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE call_tasks
			SET status = 'pending', scheduled_at = $2, retry_count = retry_count + 1, updated_at = NOW()
			WHERE id = $1 AND status = 'in-progress'`, taskID, at.UTC())
		if err != nil {
			return fmt.Errorf("task repo: retry task: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE call_logs
			SET status = 'failed', ended_at = NOW()
			WHERE id = $1`, callLogID); err != nil {
			return fmt.Errorf("task repo: retry close log: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE campaigns
			SET retries_attempted = retries_attempted + 1, updated_at = NOW()
			WHERE id = (SELECT campaign_id FROM call_tasks WHERE id = $1)`, taskID); err != nil {
			return fmt.Errorf("task repo: retry counter: %w", err)
		}
		return nil
	})
}

// Complete commits the success terminal.
func (r *TaskRepository) Complete(ctx context.Context, taskID, callLogID uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE call_tasks
			SET status = 'completed', updated_at = NOW()
			WHERE id = $1 AND status = 'in-progress'`, taskID)
		if err != nil {
			return fmt.Errorf("task repo: complete task: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE call_logs
			SET status = 'completed', ended_at = NOW()
			WHERE id = $1`, callLogID); err != nil {
			return fmt.Errorf("task repo: complete close log: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE campaigns
			SET completed_tasks = completed_tasks + 1, updated_at = NOW()
			WHERE id = (SELECT campaign_id FROM call_tasks WHERE id = $1)`, taskID); err != nil {
			return fmt.Errorf("task repo: complete counter: %w", err)
		}
		return nil
	})
}

// Fail commits the failure terminal.
func (r *TaskRepository) Fail(ctx context.Context, taskID, callLogID uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE call_tasks
			SET status = 'failed', updated_at = NOW()
			WHERE id = $1 AND status = 'in-progress'`, taskID)
		if err != nil {
			return fmt.Errorf("task repo: fail task: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE call_logs
			SET status = 'failed', ended_at = NOW()
			WHERE id = $1`, callLogID); err != nil {
			return fmt.Errorf("task repo: fail close log: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE campaigns
			SET failed_tasks = failed_tasks + 1, updated_at = NOW()
			WHERE id = (SELECT campaign_id FROM call_tasks WHERE id = $1)`, taskID); err != nil {
			return fmt.Errorf("task repo: fail counter: %w", err)
		}
		return nil
	})
}

// ReleaseOrphans returns stale in-progress tasks to pending. updated_at is
// the claim hold timestamp; a row older than the threshold means the worker
// that claimed it never committed a transition.
func (r *TaskRepository) ReleaseOrphans(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `UPDATE call_tasks
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'in-progress' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("task repo: release orphans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("task repo: rows affected: %w", err)
	}
	return n, nil
}

// CountByStatus aggregates a campaign's tasks by status.
func (r *TaskRepository) CountByStatus(ctx context.Context, campaignID uuid.UUID) (domain.TaskStatusCounts, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS cnt
		FROM call_tasks WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return domain.TaskStatusCounts{}, fmt.Errorf("task repo: count by status: %w", err)
	}
	defer rows.Close()

	var counts domain.TaskStatusCounts
	for rows.Next() {
		var status string
		var cnt int64
		if err := rows.Scan(&status, &cnt); err != nil {
			return domain.TaskStatusCounts{}, fmt.Errorf("task repo: scan count: %w", err)
		}
		switch domain.TaskStatus(status) {
		case domain.TaskStatusPending:
			counts.Pending = cnt
		case domain.TaskStatusInProgress:
			counts.InProgress = cnt
		case domain.TaskStatusCompleted:
			counts.Completed = cnt
		case domain.TaskStatusFailed:
			counts.Failed = cnt
		}
	}
	if err := rows.Err(); err != nil {
		return domain.TaskStatusCounts{}, fmt.Errorf("task repo: rows err: %w", err)
	}
	return counts, nil
}

// ListByCampaign pages tasks by id cursor.
func (r *TaskRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, afterID *uuid.UUID, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sqlx.Rows
	var err error
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT id, user_id, campaign_id, phone_number_id, status, scheduled_at, retry_count, created_at, updated_at
			FROM call_tasks WHERE campaign_id = $1 AND id > $2 ORDER BY id ASC LIMIT $3`, campaignID, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT id, user_id, campaign_id, phone_number_id, status, scheduled_at, retry_count, created_at, updated_at
			FROM call_tasks WHERE campaign_id = $1 ORDER BY id ASC LIMIT $2`, campaignID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("task repo: list: %w", err)
	}
	defer rows.Close()

	var results []domain.Task
	for rows.Next() {
		var rec taskRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("task repo: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task repo: rows err: %w", err)
	}
	return results, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type taskRecord struct {
	ID            uuid.UUID `db:"id"`
	UserID        uuid.UUID `db:"user_id"`
	CampaignID    uuid.UUID `db:"campaign_id"`
	PhoneNumberID uuid.UUID `db:"phone_number_id"`
	Status        string    `db:"status"`
	ScheduledAt   time.Time `db:"scheduled_at"`
	RetryCount    int       `db:"retry_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r taskRecord) toDomain() domain.Task {
	return domain.Task{
		ID:            r.ID,
		UserID:        r.UserID,
		CampaignID:    r.CampaignID,
		PhoneNumberID: r.PhoneNumberID,
		Status:        domain.TaskStatus(r.Status),
		ScheduledAt:   r.ScheduledAt,
		RetryCount:    r.RetryCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type executionRecord struct {
	TaskID            uuid.UUID `db:"task_id"`
	UserID            uuid.UUID `db:"user_id"`
	CampaignID        uuid.UUID `db:"campaign_id"`
	PhoneNumberID     uuid.UUID `db:"phone_number_id"`
	TaskStatus        string    `db:"task_status"`
	ScheduledAt       time.Time `db:"scheduled_at"`
	RetryCount        int       `db:"retry_count"`
	TaskCreatedAt     time.Time `db:"task_created_at"`
	TaskUpdatedAt     time.Time `db:"task_updated_at"`
	ScheduleID        uuid.UUID `db:"schedule_id"`
	CampaignName      string    `db:"campaign_name"`
	IsPaused          bool      `db:"is_paused"`
	MaxConcurrent     int       `db:"max_concurrent_calls"`
	MaxRetries        int       `db:"max_retries"`
	RetryDelaySeconds int       `db:"retry_delay_seconds"`
	TotalTasks        int64     `db:"total_tasks"`
	CompletedTasks    int64     `db:"completed_tasks"`
	FailedTasks       int64     `db:"failed_tasks"`
	RetriesAttempted  int64     `db:"retries_attempted"`
	TimeZone          string    `db:"time_zone"`
	ScheduleRules     []byte    `db:"schedule_rules"`
	PhoneNumber       string    `db:"phone_number"`
	PhoneStatus       string    `db:"phone_status"`
}

func (r executionRecord) toModel() (*repository.TaskExecution, error) {
	var rules domain.ScheduleRules
	if err := json.Unmarshal(r.ScheduleRules, &rules); err != nil {
		return nil, fmt.Errorf("task repo: decode schedule rules: %w", err)
	}

	return &repository.TaskExecution{
		Task: domain.Task{
			ID:            r.TaskID,
			UserID:        r.UserID,
			CampaignID:    r.CampaignID,
			PhoneNumberID: r.PhoneNumberID,
			Status:        domain.TaskStatus(r.TaskStatus),
			ScheduledAt:   r.ScheduledAt,
			RetryCount:    r.RetryCount,
			CreatedAt:     r.TaskCreatedAt,
			UpdatedAt:     r.TaskUpdatedAt,
		},
		Campaign: domain.Campaign{
			ID:                 r.CampaignID,
			UserID:             r.UserID,
			ScheduleID:         r.ScheduleID,
			Name:               r.CampaignName,
			IsPaused:           r.IsPaused,
			MaxConcurrentCalls: r.MaxConcurrent,
			MaxRetries:         r.MaxRetries,
			RetryDelay:         time.Duration(r.RetryDelaySeconds) * time.Second,
			TotalTasks:         r.TotalTasks,
			CompletedTasks:     r.CompletedTasks,
			FailedTasks:        r.FailedTasks,
			RetriesAttempted:   r.RetriesAttempted,
		},
		Schedule: domain.Schedule{
			ID:       r.ScheduleID,
			UserID:   r.UserID,
			TimeZone: r.TimeZone,
			Rules:    rules,
		},
		PhoneNumber: domain.PhoneNumber{
			ID:     r.PhoneNumberID,
			UserID: r.UserID,
			Number: r.PhoneNumber,
			Status: domain.PhoneNumberStatus(r.PhoneStatus),
		},
	}, nil
}
