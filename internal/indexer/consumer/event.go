package consumer

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/resonantlabs/crawlspace/internal/crawler"
	"github.com/resonantlabs/crawlspace/pkg/kafka"
	"github.com/resonantlabs/crawlspace/pkg/logger"
)

// DocumentEvent is the JSON payload carried on the documents topic. Events
// are keyed by host so one site's pages stay ordered within a partition.
type DocumentEvent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CrawledAt time.Time `json:"crawled_at"`
}

func NewDocumentEvent(doc crawler.CrawledDocument, at time.Time) DocumentEvent {
	return DocumentEvent{
		URL:       doc.URL,
		Title:     doc.Title,
		Text:      doc.Text,
		CrawledAt: at,
	}
}

// Document returns the capture carried by the event.
func (ev DocumentEvent) Document() crawler.CrawledDocument {
	return crawler.CrawledDocument{URL: ev.URL, Title: ev.Title, Text: ev.Text}
}

// eventKey partitions by host, falling back to the raw URL when it does not
// parse.
func eventKey(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}

// StreamPublisher forwards a crawl's document stream to Kafka, bridging an
// in-process crawl to indexer instances running elsewhere.
type StreamPublisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
	now      func() time.Time
}

func NewStreamPublisher(producer *kafka.Producer) *StreamPublisher {
	return &StreamPublisher{
		producer: producer,
		logger:   logger.WithComponent("stream-publisher"),
		now:      time.Now,
	}
}

// Run drains docs and publishes one event per document. Publish failures are
// logged and that document is dropped; the crawl itself is never interrupted.
func (p *StreamPublisher) Run(ctx context.Context, docs <-chan crawler.CrawledDocument) error {
	published := 0
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopping", "reason", "cancelled", "published", published)
			return ctx.Err()
		case doc, ok := <-docs:
			if !ok {
				p.logger.Info("document stream closed", "published", published)
				return nil
			}
			event := kafka.Event{
				Key:   eventKey(doc.URL),
				Value: NewDocumentEvent(doc, p.now()),
			}
			if err := p.producer.Publish(ctx, event); err != nil {
				p.logger.Error("failed to publish document", "url", doc.URL, "error", err)
				continue
			}
			published++
		}
	}
}
