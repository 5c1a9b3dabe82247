package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hamed0406/checkqueue/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type transitionEvent struct {
	Event      string              `json:"event"`
	Check      domain.CheckRequest `json:"check"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// KafkaSink publishes every transition as JSON keyed by check ID.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (k *KafkaSink) Publish(ctx context.Context, rec domain.CheckRequest) error {
	payload, err := json.Marshal(transitionEvent{
		Event:      EventDataUpdate,
		Check:      rec,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
