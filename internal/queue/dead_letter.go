package queue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/segmentio/kafka-go"
)

// DeadLetterPublisher parks messages whose infrastructure retries are
// exhausted. The task row stays in-progress until the orphan sweeper resets
// it, so dead-lettering loses no work, only surfaces it to operators.
type DeadLetterPublisher struct {
	writer *kafka.Writer
}

// NewDeadLetterPublisher constructs a publisher for the dead-letter topic.
func NewDeadLetterPublisher(k *Kafka, topic string) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: k.NewWriter(topic)}
}

// Publish copies the original message to the dead-letter topic with the
// failure reason attached as a header.
func (p *DeadLetterPublisher) Publish(ctx context.Context, original kafka.Message, reason error) error {
	record := kafka.Message{
		Key:   original.Key,
		Value: original.Value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(reason.Error())},
			{Key: "source-topic", Value: []byte(original.Topic)},
		},
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("dead letter: write: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *DeadLetterPublisher) Close() error {
	return p.writer.Close()
}

// RetryBackoff returns the exponential delay before the given 1-based
// infrastructure retry attempt.
func RetryBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Pow(2, float64(attempt-1))) * base
}
