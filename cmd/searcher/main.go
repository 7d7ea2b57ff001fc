// Command searcher starts the search HTTP service.
//
// It loads the latest index checkpoint and serves ranked queries from it,
// with optional Redis response caching and Kafka analytics events. Search
// results carry the full score breakdown (standard, quantum, persistence)
// plus a snippet per hit.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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

	"github.com/resonantlabs/crawlspace/internal/analytics"
	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/internal/searcher"
	"github.com/resonantlabs/crawlspace/internal/searcher/cache"
	"github.com/resonantlabs/crawlspace/internal/searcher/handler"
	"github.com/resonantlabs/crawlspace/pkg/config"
	apperrors "github.com/resonantlabs/crawlspace/pkg/errors"
	"github.com/resonantlabs/crawlspace/pkg/health"
	"github.com/resonantlabs/crawlspace/pkg/kafka"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	"github.com/resonantlabs/crawlspace/pkg/middleware"
	pkgredis "github.com/resonantlabs/crawlspace/pkg/redis"
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
	slog.Info("searcher starting", "port", cfg.Server.Port)

	m := metrics.Default()
	engine := indexer.NewEngine(cfg.Engine, m)
	switch err := engine.LoadCheckpoint(cfg.Checkpoint.Path); {
	case err == nil:
		slog.Info("checkpoint loaded", "path", cfg.Checkpoint.Path, "documents", engine.Len())
	case errors.Is(err, apperrors.ErrCheckpointNotFound):
		slog.Warn("no checkpoint yet, serving an empty index", "path", cfg.Checkpoint.Path)
	default:
		slog.Error("checkpoint load failed", "path", cfg.Checkpoint.Path, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unreachable, serving uncached", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			slog.Info("response cache on", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL.Std())
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Analytics)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		n := engine.Len()
		if n == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "empty index"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: strconv.Itoa(n) + " documents"}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping))
	}

	s := searcher.New(engine, cfg.Searcher, m)
	h := handler.New(s, queryCache, collector, cfg.Searcher, m)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
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

	slog.Info("searcher listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("serve failed", "error", err)
		os.Exit(1)
	}
	slog.Info("searcher stopped")
}
