// Package consumer feeds crawled documents into the indexing engine. It
// drains either the crawler's in-process channel or a Kafka topic, archives
// raw captures when PostgreSQL is configured, and checkpoints the index at a
// configured cadence.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/resonantlabs/crawlspace/internal/crawler"
	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/kafka"
	"github.com/resonantlabs/crawlspace/pkg/logger"
)

// Consumer is the single reader of a crawl's document stream.
type Consumer struct {
	engine  *indexer.Engine
	archive *Archive // nil disables archiving
	cfg     config.CheckpointConfig
	maxDocs int
	logger  *slog.Logger
}

func New(engine *indexer.Engine, archive *Archive, cfg config.CheckpointConfig, maxDocs int) *Consumer {
	return &Consumer{
		engine:  engine,
		archive: archive,
		cfg:     cfg,
		maxDocs: maxDocs,
		logger:  logger.WithComponent("consumer"),
	}
}

// Run drains docs until the channel closes, the engine reaches maxDocs
// (0 means unlimited), or ctx ends. Every cfg.EveryDocs accepted documents it
// checkpoints and runs a compression sweep; failures there are logged and the
// drain continues. On every exit path it writes a final checkpoint and the
// CSV export.
func (c *Consumer) Run(ctx context.Context, docs <-chan crawler.CrawledDocument) error {
	received := 0
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", "cancelled", "received", received)
			c.finalize()
			return ctx.Err()
		case doc, ok := <-docs:
			if !ok {
				c.logger.Info("document stream closed", "received", received)
				c.finalize()
				return nil
			}
			received++
			c.accept(ctx, doc)

			if c.maxDocs > 0 && c.engine.Len() >= c.maxDocs {
				c.logger.Info("document budget reached",
					"indexed", c.engine.Len(),
					"received", received,
				)
				c.finalize()
				return nil
			}
			if received%c.cfg.EveryDocs == 0 {
				c.checkpoint()
			}
		}
	}
}

// accept indexes one document and, when configured, archives it with its
// computed metadata. Archive failures are logged, not fatal: the index entry
// is still useful without its archived row.
func (c *Consumer) accept(ctx context.Context, doc crawler.CrawledDocument) {
	if !c.engine.AddDocument(doc.URL, doc.Title, doc.Text) {
		c.logger.Debug("document dropped", "url", doc.URL)
		return
	}
	if c.archive != nil {
		meta, _ := c.engine.DocumentMeta(doc.URL)
		if err := c.archive.Save(ctx, doc, meta); err != nil {
			c.logger.Error("failed to archive document", "url", doc.URL, "error", err)
		}
	}
}

func (c *Consumer) checkpoint() {
	if err := c.engine.SaveCheckpoint(c.cfg.Path); err != nil {
		c.logger.Error("checkpoint failed", "path", c.cfg.Path, "error", err)
		return
	}
	compressed, err := c.engine.CompressAll()
	if err != nil {
		c.logger.Error("compression sweep failed", "error", err)
	}
	stats := c.engine.Stats()
	c.logger.Info("checkpoint written",
		"path", c.cfg.Path,
		"documents", stats.Documents,
		"vocabulary", stats.VocabularySize,
		"compressed", compressed,
	)
}

func (c *Consumer) finalize() {
	c.checkpoint()
	if err := c.engine.ExportCSV(c.cfg.ExportPath); err != nil {
		c.logger.Error("CSV export failed", "path", c.cfg.ExportPath, "error", err)
		return
	}
	c.logger.Info("index exported", "path", c.cfg.ExportPath, "documents", c.engine.Len())
}

// RunCheckpointLoop checkpoints on a timer instead of a document count. It is
// the cadence used when documents arrive over Kafka, where the consumer never
// sees the stream end.
func (c *Consumer) RunCheckpointLoop(ctx context.Context) {
	interval := c.cfg.FlushInterval.Std()
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.finalize()
			return
		case <-ticker.C:
			c.checkpoint()
		}
	}
}

// HandleDocument returns a Kafka handler that indexes every crawled document
// event. Undecodable events are logged and skipped rather than redelivered.
// Archive failures are logged, not returned, because the upsert makes
// redelivery pointless for them.
func HandleDocument(engine *indexer.Engine, archive *Archive) kafka.HandlerFunc {
	log := logger.WithComponent("index-consumer")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			log.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		doc := event.Document()
		if !engine.AddDocument(doc.URL, doc.Title, doc.Text) {
			log.Debug("document dropped", "url", doc.URL)
			return nil
		}
		if archive != nil {
			meta, _ := engine.DocumentMeta(doc.URL)
			if err := archive.Save(ctx, doc, meta); err != nil {
				log.Error("failed to archive document", "url", doc.URL, "error", err)
			}
		}
		log.Debug("document indexed", "url", doc.URL)
		return nil
	}
}
