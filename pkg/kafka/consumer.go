// Package kafka wraps segmentio/kafka-go with the two shapes the pipeline
// needs: a JSON-event producer and a committing consumer loop that hands raw
// messages to a callback.
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

// HandlerFunc processes one fetched message. Returning an error skips the
// commit so the message is redelivered.
type HandlerFunc func(ctx context.Context, key, value []byte) error

const (
	fetchMinBytes   = 1 << 10
	fetchMaxBytes   = 10 << 20
	fetchMaxWait    = 500 * time.Millisecond
	fetchErrorPause = time.Second
)

// Consumer runs a fetch/handle/commit loop against one topic as part of a
// consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler HandlerFunc
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler HandlerFunc) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    fetchMinBytes,
			MaxBytes:    fetchMaxBytes,
			MaxWait:     fetchMaxWait,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		logger:  logger.WithComponent("kafka-consumer").With("topic", topic),
	}
}

// Run consumes until ctx is cancelled. Fetch failures pause briefly rather
// than spinning against a broker that is down.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consuming")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopped", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("fetch failed", "error", err)
			select {
			case <-time.After(fetchErrorPause):
			case <-ctx.Done():
			}
			continue
		}
		c.process(ctx, msg)
	}
}

// process hands one message to the handler and commits it on success.
// Handler errors leave the offset uncommitted for redelivery.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)

	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		log.Error("handler rejected message", "key", string(msg.Key), "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("commit failed", "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
