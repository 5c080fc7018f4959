package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

// CallLogRepository implements repository.CallLogRepository.
type CallLogRepository struct {
	db *sqlx.DB
}

// NewCallLogRepository constructs the repository.
func NewCallLogRepository(db *sqlx.DB) *CallLogRepository {
	return &CallLogRepository{db: db}
}

// Create inserts a new placement attempt record.
func (r *CallLogRepository) Create(ctx context.Context, log *domain.CallLog) error {
	q := `INSERT INTO call_logs (
		id, user_id, call_task_id, phone_number_id, dialed_number, external_call_id, status, started_at
	) VALUES (:id, :user_id, :call_task_id, :phone_number_id, :dialed_number, :external_call_id, :status, :started_at)`

	params := map[string]any{
		"id":               log.ID,
		"user_id":          log.UserID,
		"call_task_id":     log.CallTaskID,
		"phone_number_id":  log.PhoneNumberID,
		"dialed_number":    log.DialedNumber,
		"external_call_id": log.ExternalCallID,
		"status":           log.Status,
		"started_at":       log.StartedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("call log repo: insert: %w", err)
	}
	return nil
}

// SetExternalCallID records the provider-assigned id once the call is placed.
func (r *CallLogRepository) SetExternalCallID(ctx context.Context, logID uuid.UUID, externalCallID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE call_logs SET external_call_id = $1, status = 'in-progress' WHERE id = $2`,
		externalCallID, logID); err != nil {
		return fmt.Errorf("call log repo: set external id: %w", err)
	}
	return nil
}

// ListByTask returns the attempt trail for a task, newest first.
func (r *CallLogRepository) ListByTask(ctx context.Context, taskID uuid.UUID, limit int) ([]domain.CallLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT id, user_id, call_task_id, phone_number_id, dialed_number,
			external_call_id, status, started_at, ended_at
		FROM call_logs WHERE call_task_id = $1 ORDER BY started_at DESC LIMIT $2`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("call log repo: list: %w", err)
	}
	defer rows.Close()

	var results []domain.CallLog
	for rows.Next() {
		var rec callLogRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("call log repo: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("call log repo: rows err: %w", err)
	}
	return results, nil
}

type callLogRecord struct {
	ID             uuid.UUID    `db:"id"`
	UserID         uuid.UUID    `db:"user_id"`
	CallTaskID     uuid.UUID    `db:"call_task_id"`
	PhoneNumberID  uuid.UUID    `db:"phone_number_id"`
	DialedNumber   string       `db:"dialed_number"`
	ExternalCallID string       `db:"external_call_id"`
	Status         string       `db:"status"`
	StartedAt      time.Time    `db:"started_at"`
	EndedAt        sql.NullTime `db:"ended_at"`
}

func (r callLogRecord) toDomain() domain.CallLog {
	log := domain.CallLog{
		ID:             r.ID,
		UserID:         r.UserID,
		CallTaskID:     r.CallTaskID,
		PhoneNumberID:  r.PhoneNumberID,
		DialedNumber:   r.DialedNumber,
		ExternalCallID: r.ExternalCallID,
		Status:         domain.CallLogStatus(r.Status),
		StartedAt:      r.StartedAt,
	}
	if r.EndedAt.Valid {
		t := r.EndedAt.Time
		log.EndedAt = &t
	}
	return log
}
