package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/resonantlabs/crawlspace/internal/crawler"
	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	"github.com/resonantlabs/crawlspace/pkg/postgres"
	"github.com/resonantlabs/crawlspace/pkg/resilience"
)

// Archive records indexed pages in PostgreSQL so an index can be inspected
// and rebuilt without re-crawling.
type Archive struct {
	client  *postgres.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewArchive(client *postgres.Client, m *metrics.Metrics) *Archive {
	return &Archive{
		client:  client,
		breaker: resilience.NewCircuitBreaker("postgres-archive", resilience.CircuitBreakerConfig{}),
		logger:  logger.WithComponent("archive"),
		metrics: m,
	}
}

var archiveRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
}

const upsertTimeout = 5 * time.Second

// Save upserts one document keyed by URL, so a re-crawled page overwrites its
// previous row instead of duplicating it. The circuit breaker keeps a dead
// database from slowing indexing to retry pace; while it is open, saves fail
// immediately.
func (a *Archive) Save(ctx context.Context, doc crawler.CrawledDocument, meta indexer.DocumentMeta) error {
	err := a.breaker.Execute(func() error {
		return resilience.Retry(ctx, "archive-save", archiveRetry, func() error {
			return resilience.WithTimeout(ctx, upsertTimeout, "archive upsert", func(ctx context.Context) error {
				return a.client.InTx(ctx, func(tx *sql.Tx) error {
					_, err := tx.ExecContext(ctx,
						`INSERT INTO documents (url, title, status, entropy, reversibility, content_size, indexed_at)
						 VALUES ($1, $2, 'INDEXED', $3, $4, $5, NOW())
						 ON CONFLICT (url) DO UPDATE
						 SET title = EXCLUDED.title,
						     status = EXCLUDED.status,
						     entropy = EXCLUDED.entropy,
						     reversibility = EXCLUDED.reversibility,
						     content_size = EXCLUDED.content_size,
						     indexed_at = NOW()`,
						doc.URL, doc.Title, meta.Entropy, meta.Reversibility, len(doc.Text),
					)
					return err
				})
			})
		})
	})
	if err != nil {
		a.metrics.ArchiveWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("archiving %s: %w", doc.URL, err)
	}
	a.metrics.ArchiveWritesTotal.WithLabelValues("ok").Inc()
	return nil
}
