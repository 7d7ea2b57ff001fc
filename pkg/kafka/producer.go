package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Event is one record to publish: Key picks the partition, Value is
// marshalled to JSON.
type Event struct {
	Key   string
	Value any
}

func (e Event) message() (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshalling event: %w", err)
	}
	return kafka.Message{Key: []byte(e.Key), Value: value}, nil
}

const (
	writerBatchSize    = 100
	writerBatchTimeout = 10 * time.Millisecond
	writerMaxAttempts  = 3
)

// Producer writes JSON events to one topic, synchronously and with full acks,
// hash-balanced by key so same-key events stay ordered.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    writerBatchSize,
			BatchTimeout: writerBatchTimeout,
			MaxAttempts:  writerMaxAttempts,
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger.WithComponent("kafka-producer").With("topic", topic),
	}
}

// Publish writes one event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := event.message()
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// PublishBatch writes events in one producer call. Any unmarshallable event
// fails the whole batch before anything is sent.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := event.message()
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("batch publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("kafka publish batch: %w", err)
	}
	return nil
}

// Close flushes buffered writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
