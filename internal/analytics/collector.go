package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/resonantlabs/crawlspace/pkg/kafka"
	"github.com/resonantlabs/crawlspace/pkg/logger"
)

// Collector buffers tracked events and flushes them to Kafka in batches,
// either when a batch fills or on a timer.
type Collector struct {
	producer      *kafka.Producer
	queue         chan any
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

const (
	defaultQueueSize = 10000
	flushBatchSize   = 100
	flushEvery       = 5 * time.Second

	// finalFlushGrace bounds the last flush on shutdown, when the parent
	// context is already cancelled.
	finalFlushGrace = 3 * time.Second
)

func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultQueueSize
	}
	return &Collector{
		producer:      producer,
		queue:         make(chan any, bufferSize),
		batchSize:     flushBatchSize,
		flushInterval: flushEvery,
		logger:        logger.WithComponent("analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. The loop ends when ctx is
// cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)

		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)

		for {
			select {
			case ev, ok := <-c.queue:
				if !ok {
					c.flush(ctx, &batch)
					return
				}
				batch = append(batch, kafka.Event{Key: "analytics", Value: ev})
				if len(batch) >= c.batchSize {
					c.flush(ctx, &batch)
				}
			case <-ticker.C:
				c.flush(ctx, &batch)
			case <-ctx.Done():
				c.drainInto(&batch)
				flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushGrace)
				c.flush(flushCtx, &batch)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.queue),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track queues one event. A full buffer drops the event so callers never
// block on analytics.
func (c *Collector) Track(ev any) {
	select {
	case c.queue <- ev:
	default:
		c.logger.Warn("analytics event dropped, buffer full")
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	close(c.queue)
	<-c.done
}

// flush publishes and empties the batch. Failed batches are dropped after
// logging; analytics never blocks or retries at the expense of search.
func (c *Collector) flush(ctx context.Context, batch *[]kafka.Event) {
	if len(*batch) == 0 {
		return
	}
	if err := c.producer.PublishBatch(ctx, *batch); err != nil {
		c.logger.Error("analytics flush failed, batch dropped",
			"events", len(*batch),
			"error", err,
		)
	}
	*batch = (*batch)[:0]
}

func (c *Collector) drainInto(batch *[]kafka.Event) {
	for {
		select {
		case ev, ok := <-c.queue:
			if !ok {
				return
			}
			*batch = append(*batch, kafka.Event{Key: "analytics", Value: ev})
		default:
			return
		}
	}
}
