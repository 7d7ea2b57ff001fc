// Package searcher executes ranked queries against an Engine and assembles
// the response payload, applying the post-query feedback jump after every
// executed search.
package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/resonantlabs/crawlspace/internal/indexer"
	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
	"github.com/resonantlabs/crawlspace/pkg/tracing"
)

// Response is the JSON payload returned for one query.
type Response struct {
	Query   string                 `json:"query"`
	Total   int                    `json:"total"`
	TookMs  int64                  `json:"took_ms"`
	Results []indexer.SearchResult `json:"results"`
}

// TopScore returns the best combined score in the response, or 0 for an
// empty result set.
func (r *Response) TopScore() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return r.Results[0].Score
}

type Searcher struct {
	engine  *indexer.Engine
	cfg     config.SearcherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(engine *indexer.Engine, cfg config.SearcherConfig, m *metrics.Metrics) *Searcher {
	return &Searcher{
		engine:  engine,
		cfg:     cfg,
		logger:  logger.WithComponent("searcher"),
		metrics: m,
	}
}

// Query runs one search and then the feedback jump for it. Results is never
// nil, so the response marshals as an empty array rather than null.
func (s *Searcher) Query(ctx context.Context, query string, limit int) *Response {
	start := time.Now()

	_, searchSpan := tracing.StartChildSpan(ctx, "engine_search")
	results := s.engine.Search(query, limit)
	searchSpan.SetAttr("results", len(results))
	searchSpan.End()

	_, jumpSpan := tracing.StartChildSpan(ctx, "feedback_jump")
	touched := s.engine.ApplyQuantumJump(query, s.cfg.FeedbackImportance)
	jumpSpan.SetAttr("touched", touched)
	jumpSpan.End()

	if results == nil {
		results = []indexer.SearchResult{}
	}

	resultType := "ok"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.SearchResultsCount.Observe(float64(len(results)))

	s.logger.Debug("query executed",
		"query", query,
		"results", len(results),
		"feedback_touched", touched,
	)
	return &Response{
		Query:   query,
		Total:   len(results),
		TookMs:  time.Since(start).Milliseconds(),
		Results: results,
	}
}

// Stats exposes the engine snapshot for the stats endpoint.
func (s *Searcher) Stats() indexer.EngineStats {
	return s.engine.Stats()
}
