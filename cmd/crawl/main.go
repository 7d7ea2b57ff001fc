// Command crawl runs one bounded crawl session.
//
// By default the session is self-contained: crawled pages stream straight into
// an in-process index engine, which checkpoints to disk and exports the final
// CSV when the frontier is exhausted or the page budget is reached. With Kafka
// enabled in the config, the session publishes documents to the crawl topic
// instead and leaves indexing to the indexer service.
//
// Usage:
//
//	go run ./cmd/crawl -seeds https://example.com [-config configs/development.yaml]
//	go run ./cmd/crawl -seeds https://example.com -max-pages 50 -query "search terms"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/resonantlabs/crawlspace/internal/crawler"
	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/internal/indexer/consumer"
	"github.com/resonantlabs/crawlspace/internal/searcher"
	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/kafka"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	"github.com/resonantlabs/crawlspace/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	seeds := flag.String("seeds", "", "comma-separated seed URLs (overrides config)")
	maxPages := flag.Int("max-pages", 0, "page budget for this session (overrides config)")
	maxDepth := flag.Int("max-depth", -1, "maximum link depth from the seeds (overrides config)")
	query := flag.String("query", "", "run this query against the index after the crawl")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *seeds != "" {
		cfg.Crawler.Seeds = strings.Split(*seeds, ",")
	}
	if *maxPages > 0 {
		cfg.Crawler.MaxPages = *maxPages
	}
	if *maxDepth >= 0 {
		cfg.Crawler.MaxDepth = *maxDepth
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Crawler.Seeds) == 0 {
		fmt.Fprintln(os.Stderr, "no seed URLs: pass -seeds or set crawler.seeds in the config")
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting crawl session",
		"seeds", cfg.Crawler.Seeds,
		"max_pages", cfg.Crawler.MaxPages,
		"max_depth", cfg.Crawler.MaxDepth,
		"workers", cfg.Crawler.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.Default()
	c := crawler.New(cfg.Crawler, m)

	// The crawl gets its own cancel so the pipeline can stop the workers once
	// the consumer has taken all the documents it wants.
	crawlCtx, stopCrawl := context.WithCancel(ctx)
	defer stopCrawl()
	docs := c.Crawl(crawlCtx)

	if cfg.Kafka.Enabled {
		publishSession(ctx, cfg, docs)
		slog.Info("crawl session finished", "pages_visited", c.Visited())
		if *query != "" {
			slog.Warn("ignoring -query: documents were published to kafka, not indexed locally")
		}
		return
	}

	engine := indexer.NewEngine(cfg.Engine, m)
	var archive *consumer.Archive
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		archive = consumer.NewArchive(db, m)
		slog.Info("document archive enabled", "database", cfg.Postgres.Database)
	}

	cons := consumer.New(engine, archive, cfg.Checkpoint, cfg.Crawler.MaxPages)
	if err := cons.Run(ctx, docs); err != nil {
		slog.Error("indexing pipeline stopped", "error", err)
	}
	stopCrawl()

	stats := engine.Stats()
	slog.Info("crawl session finished",
		"pages_visited", c.Visited(),
		"documents_indexed", stats.Documents,
		"vocabulary_size", stats.VocabularySize,
		"checkpoint", cfg.Checkpoint.Path,
		"export", cfg.Checkpoint.ExportPath,
	)

	if *query != "" {
		printResults(engine, cfg.Searcher, *query)
	}
}

// printResults runs one query against the freshly built index and writes a
// ranked report to stdout.
func printResults(engine *indexer.Engine, cfg config.SearcherConfig, query string) {
	s := searcher.New(engine, cfg, metrics.Default())
	resp := s.Query(context.Background(), query, cfg.DefaultLimit)

	fmt.Println()
	fmt.Printf("=== Results for %q ===\n", query)
	if resp.Total == 0 {
		fmt.Println("no matching documents")
		return
	}
	for i, r := range resp.Results {
		fmt.Printf("%2d. [%.4f] %s\n", i+1, r.Score, r.URL)
		fmt.Printf("    %s\n", r.Title)
		fmt.Printf("    standard=%.4f quantum=%.4f persistence=%.4f\n",
			r.Standard, r.Quantum, r.Persistence)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
	}
	fmt.Printf("\n%d results in %dms\n", resp.Total, resp.TookMs)
}

// publishSession drains the crawl stream into the Kafka documents topic.
func publishSession(ctx context.Context, cfg *config.Config, docs <-chan crawler.CrawledDocument) {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Documents)
	defer producer.Close()
	slog.Info("publishing crawled documents", "topic", cfg.Kafka.Topics.Documents)

	pub := consumer.NewStreamPublisher(producer)
	if err := pub.Run(ctx, docs); err != nil {
		slog.Error("publish pipeline stopped", "error", err)
	}
}
