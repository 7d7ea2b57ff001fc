// Package handler exposes the search HTTP API: query execution with optional
// response caching, an engine/cache stats endpoint, and cache invalidation.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/resonantlabs/crawlspace/internal/analytics"
	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/internal/searcher"
	"github.com/resonantlabs/crawlspace/internal/searcher/cache"
	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	"github.com/resonantlabs/crawlspace/pkg/tracing"
)

type Handler struct {
	searcher  *searcher.Searcher
	cache     *cache.QueryCache    // nil disables caching
	collector *analytics.Collector // nil disables analytics
	cfg       config.SearcherConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(s *searcher.Searcher, queryCache *cache.QueryCache, collector *analytics.Collector, cfg config.SearcherConfig, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher:  s,
		cache:     queryCache,
		collector: collector,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.WithComponent("search-handler"),
	}
}

// Search handles GET /api/v1/search?q=...&limit=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.fail(w, http.StatusBadRequest, "missing required parameter q")
		return
	}
	limit, ok := h.limitFrom(r)
	if !ok {
		h.fail(w, http.StatusBadRequest, "limit must be an integer >= 1")
		return
	}

	ctx, span := tracing.StartSpan(ctx, "search_request", logger.RequestIDFromContext(ctx))
	span.SetAttr("query", query)

	resp, cacheState, err := h.execute(ctx, query, limit)
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.fail(w, http.StatusInternalServerError, "search failed")
		return
	}

	took := time.Since(start)
	span.SetAttr("cache", cacheState)
	span.End()
	span.Log()
	h.metrics.SearchLatency.WithLabelValues(cacheState).Observe(took.Seconds())

	log.Info("search served",
		"query", query,
		"total", resp.Total,
		"cache", cacheState,
		"took_ms", took.Milliseconds(),
	)
	h.track(ctx, resp, query, limit, cacheState, took)
	h.respond(w, http.StatusOK, resp)
}

// execute runs the query, through the response cache when one is configured.
// The returned cache state is "hit", "miss", or "off".
func (h *Handler) execute(ctx context.Context, query string, limit int) (*searcher.Response, string, error) {
	if h.cache == nil {
		return h.searcher.Query(ctx, query, limit), "off", nil
	}
	resp, hit, err := h.cache.GetOrCompute(ctx, query, limit, func() (*searcher.Response, error) {
		return h.searcher.Query(ctx, query, limit), nil
	})
	switch {
	case err != nil:
		return nil, "", err
	case hit:
		return resp, "hit", nil
	default:
		return resp, "miss", nil
	}
}

// limitFrom parses the limit parameter, falling back to the configured
// default and clamping to the configured maximum.
func (h *Handler) limitFrom(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.cfg.DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, h.cfg.MaxLimit), true
}

func (h *Handler) track(ctx context.Context, resp *searcher.Response, query string, limit int, cacheState string, took time.Duration) {
	if h.collector == nil {
		return
	}
	typ := analytics.EventServed
	if resp.Total == 0 {
		typ = analytics.EventZeroResult
	}
	h.collector.Track(analytics.QueryEvent{
		Type:      typ,
		Query:     query,
		Limit:     limit,
		Total:     resp.Total,
		TopScore:  resp.TopScore(),
		TookMs:    took.Milliseconds(),
		Cache:     cacheState,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestIDFromContext(ctx),
	})
}

// Stats handles GET /api/v1/stats: the engine snapshot plus cache counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	type cacheStats struct {
		Hits    int64  `json:"hits"`
		Misses  int64  `json:"misses"`
		HitRate string `json:"hit_rate"`
	}
	out := struct {
		Engine indexer.EngineStats `json:"engine"`
		Cache  any                 `json:"cache"`
	}{Engine: h.searcher.Stats()}

	if h.cache == nil {
		out.Cache = map[string]string{"status": "disabled"}
	} else {
		hits, misses := h.cache.Stats()
		cs := cacheStats{Hits: hits, Misses: misses, HitRate: "0.0%"}
		if total := hits + misses; total > 0 {
			cs.HitRate = fmt.Sprintf("%.1f%%", float64(hits)/float64(total)*100)
		}
		out.Cache = cs
	}
	h.respond(w, http.StatusOK, out)
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.fail(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidate failed", "error", err)
		h.fail(w, http.StatusInternalServerError, "invalidate failed")
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"error": msg})
}
