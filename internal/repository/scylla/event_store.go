package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

// EventStore appends per-attempt call events in Scylla. The table is
// partitioned by task, clustered by occurrence time descending, so the
// attempt trail of a task is a single-partition read.
type EventStore struct {
	session *gocql.Session
}

// NewEventStore creates a new event store.
func NewEventStore(session *gocql.Session) *EventStore {
	return &EventStore{session: session}
}

// Append inserts an attempt event.
func (s *EventStore) Append(ctx context.Context, event domain.CallAttemptEvent) error {
	if err := s.session.Query(`INSERT INTO call_attempt_events (task_id, occurred_at, event_id, call_log_id, campaign_id, attempt, status, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.TaskID.String(), event.OccurredAt, event.ID.String(), event.CallLogID.String(), event.CampaignID.String(),
		event.Attempt, string(event.Status), event.Error, event.Duration.Milliseconds(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("event store: insert attempt event: %w", err)
	}
	return nil
}

// ListByTask returns the newest attempt events for a task.
func (s *EventStore) ListByTask(ctx context.Context, taskID uuid.UUID, limit int) ([]domain.CallAttemptEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.session.Query(`SELECT task_id, occurred_at, event_id, call_log_id, campaign_id, attempt, status, error, duration_ms
		FROM call_attempt_events WHERE task_id = ? LIMIT ?`, taskID.String(), limit).WithContext(ctx).Iter()

	var (
		events     []domain.CallAttemptEvent
		taskIDStr  string
		occurredAt time.Time
		eventIDStr string
		logIDStr   string
		campIDStr  string
		attempt    int
		status     string
		errText    string
		durationMs int64
	)

	for iter.Scan(&taskIDStr, &occurredAt, &eventIDStr, &logIDStr, &campIDStr, &attempt, &status, &errText, &durationMs) {
		event := domain.CallAttemptEvent{
			OccurredAt: occurredAt,
			Attempt:    attempt,
			Status:     domain.CallLogStatus(status),
			Error:      errText,
			Duration:   time.Duration(durationMs) * time.Millisecond,
		}
		var err error
		if event.TaskID, err = uuid.Parse(taskIDStr); err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("event store: parse task_id: %w", err)
		}
		if event.ID, err = uuid.Parse(eventIDStr); err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("event store: parse event_id: %w", err)
		}
		if event.CallLogID, err = uuid.Parse(logIDStr); err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("event store: parse call_log_id: %w", err)
		}
		if event.CampaignID, err = uuid.Parse(campIDStr); err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("event store: parse campaign_id: %w", err)
		}
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("event store: list close: %w", err)
	}
	return events, nil
}
