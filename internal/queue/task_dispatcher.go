package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

// TaskDispatcher publishes claimed task ids to the dispatch topic in bulk.
// A Redis key per task deduplicates enqueues: while the key is live a
// re-enqueue of the same task is a no-op. Workers clear the key once the
// task's transition is committed; the TTL bounds leakage if a worker dies.
type TaskDispatcher struct {
	writer   *kafka.Writer
	redis    *redis.Client
	dedupTTL time.Duration
}

// NewTaskDispatcher constructs a dispatcher for the given topic.
func NewTaskDispatcher(k *Kafka, topic string, redisClient *redis.Client, dedupTTL time.Duration) *TaskDispatcher {
	if dedupTTL <= 0 {
		dedupTTL = 15 * time.Minute
	}
	return &TaskDispatcher{
		writer:   k.NewWriter(topic),
		redis:    redisClient,
		dedupTTL: dedupTTL,
	}
}

// DedupKey derives the dedup key for a task. Deterministic, so re-enqueues
// of the same task always contend on the same key.
func DedupKey(taskID fmt.Stringer) string {
	return "outbound:dispatch:task:" + taskID.String()
}

// EnqueueTasks publishes the tasks that are not already live on the queue.
// Returns the number actually enqueued.
func (d *TaskDispatcher) EnqueueTasks(ctx context.Context, tasks []domain.Task) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	records := make([]kafka.Message, 0, len(tasks))
	claimed := make([]string, 0, len(tasks))
	now := time.Now().UTC()

	for _, task := range tasks {
		key := DedupKey(task.ID)
		ok, err := d.redis.SetNX(ctx, key, now.Format(time.RFC3339Nano), d.dedupTTL).Result()
		if err != nil {
			d.rollbackKeys(claimed)
			return 0, fmt.Errorf("task dispatcher: dedup reserve: %w", err)
		}
		if !ok {
			// already live on the queue
			continue
		}
		claimed = append(claimed, key)

		value, err := json.Marshal(TaskMessage{
			TaskID:     task.ID,
			CampaignID: task.CampaignID,
			EnqueuedAt: now,
		})
		if err != nil {
			d.rollbackKeys(claimed)
			return 0, fmt.Errorf("task dispatcher: marshal message: %w", err)
		}

		records = append(records, kafka.Message{
			Key:   task.ID[:],
			Value: value,
			Time:  now,
		})
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := d.writer.WriteMessages(ctx, records...); err != nil {
		d.rollbackKeys(claimed)
		return 0, fmt.Errorf("task dispatcher: write messages: %w", err)
	}
	return len(records), nil
}

// ClearDedup releases a task's dedup key after its transition committed.
func (d *TaskDispatcher) ClearDedup(ctx context.Context, taskID fmt.Stringer) error {
	if err := d.redis.Del(ctx, DedupKey(taskID)).Err(); err != nil {
		return fmt.Errorf("task dispatcher: clear dedup: %w", err)
	}
	return nil
}

func (d *TaskDispatcher) rollbackKeys(keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.redis.Del(ctx, keys...).Err()
}

// Close closes the underlying writer.
func (d *TaskDispatcher) Close() error {
	return d.writer.Close()
}
