// Command indexer starts the long-running indexing service.
//
// Documents arrive two ways: over HTTP via POST /api/v1/documents, and, when
// Kafka is enabled, from the crawl topic written by distributed crawl
// sessions. Both feed the same index engine. The engine checkpoints on a
// document cadence and on a timer, archives documents to PostgreSQL when
// configured, and serves health endpoints for orchestration.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/resonantlabs/crawlspace/internal/crawler"
	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/internal/indexer/consumer"
	"github.com/resonantlabs/crawlspace/internal/indexer/ingest"
	"github.com/resonantlabs/crawlspace/pkg/config"
	apperrors "github.com/resonantlabs/crawlspace/pkg/errors"
	"github.com/resonantlabs/crawlspace/pkg/health"
	"github.com/resonantlabs/crawlspace/pkg/kafka"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	"github.com/resonantlabs/crawlspace/pkg/middleware"
	"github.com/resonantlabs/crawlspace/pkg/postgres"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/development.yaml", "config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("indexer starting", "port", cfg.Server.Port)

	m := metrics.Default()
	engine := indexer.NewEngine(cfg.Engine, m)
	switch err := engine.LoadCheckpoint(cfg.Checkpoint.Path); {
	case err == nil:
		slog.Info("checkpoint restored", "path", cfg.Checkpoint.Path, "documents", engine.Len())
	case errors.Is(err, apperrors.ErrCheckpointNotFound):
		slog.Info("no checkpoint found, starting with an empty index", "path", cfg.Checkpoint.Path)
	default:
		slog.Error("checkpoint load failed", "path", cfg.Checkpoint.Path, "error", err)
		os.Exit(1)
	}

	var archive *consumer.Archive
	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		archive = consumer.NewArchive(db, m)
		slog.Info("document archive enabled", "database", cfg.Postgres.Database)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	// The ingest handler feeds the same channel the crawler would, so HTTP
	// submissions and crawl sessions share one consumer.
	docs := make(chan crawler.CrawledDocument, cfg.Crawler.ChannelCapacity)
	cons := consumer.New(engine, archive, cfg.Checkpoint, 0)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := cons.Run(ctx, docs); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consumer stopped", "error", err)
		}
	}()
	go cons.RunCheckpointLoop(ctx)

	if cfg.Kafka.Enabled {
		kafkaConsumer := kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.Documents,
			consumer.HandleDocument(engine, archive),
		)
		defer kafkaConsumer.Close()
		go func() {
			if err := kafkaConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("kafka consumer stopped", "error", err)
			}
		}()
		slog.Info("consuming crawled documents from kafka",
			"topic", cfg.Kafka.Topics.Documents,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents indexed", engine.Len()),
		}
	})
	if db != nil {
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	ingestHandler := ingest.NewHandler(docs)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", ingestHandler.Submit)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Metrics(m),
		middleware.Timeout(cfg.Server.RequestTimeout.Std()),
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down", "grace", cfg.Server.ShutdownTimeout.Std())
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("indexer listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("serve failed", "error", err)
		os.Exit(1)
	}

	// The consumer writes its final checkpoint on the way out; wait for it.
	<-consumerDone
	slog.Info("indexer stopped", "documents", engine.Len())
}
