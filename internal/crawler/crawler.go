// Package crawler implements a polite, bounded-concurrency frontier crawler.
// Workers share a mutex-guarded frontier (queue, visited set, per-domain
// stamps), honor a 1s per-domain gap plus random jitter before every fetch,
// and stream extracted pages through a bounded channel to a single indexing
// consumer.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/resonantlabs/crawlspace/pkg/config"
	apperrors "github.com/resonantlabs/crawlspace/pkg/errors"
	"github.com/resonantlabs/crawlspace/pkg/logger"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
)

const (
	// domainGap is the minimum spacing between two requests to one host.
	domainGap = 1000 * time.Millisecond

	// emptyPollDelay is how long a worker waits before re-checking a
	// momentarily empty frontier; another worker may still produce links.
	emptyPollDelay = 100 * time.Millisecond

	maxWorkers = 20
)

type Crawler struct {
	cfg      config.CrawlerConfig
	frontier *frontier
	fetcher  *pageFetcher
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) bool
	jitter func() time.Duration
}

func New(cfg config.CrawlerConfig, m *metrics.Metrics) *Crawler {
	c := &Crawler{
		cfg:      cfg,
		frontier: newFrontier(),
		fetcher:  newPageFetcher(cfg),
		logger:   logger.WithComponent("crawler"),
		metrics:  m,
		now:      time.Now,
		jitter: func() time.Duration {
			return time.Duration(100+rand.Intn(400)) * time.Millisecond
		},
	}
	c.sleep = func(ctx context.Context, d time.Duration) bool {
		if d <= 0 {
			return ctx.Err() == nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}
	if cfg.GlobalRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), c.workerCount())
	}
	return c
}

func (c *Crawler) workerCount() int {
	n := c.cfg.Workers
	if n < 1 {
		n = 1
	}
	if n > maxWorkers {
		n = maxWorkers
	}
	return n
}

// Crawl seeds the frontier and runs the worker pool. It returns the
// delivery channel immediately; the channel closes once every worker has
// stopped, whether by page budget, frontier exhaustion, or cancellation.
func (c *Crawler) Crawl(ctx context.Context) <-chan CrawledDocument {
	out := make(chan CrawledDocument, c.cfg.ChannelCapacity)

	for _, seed := range c.cfg.Seeds {
		c.frontier.push(seed, 0)
	}
	allowed := c.allowedHosts()

	workers := c.workerCount()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return c.worker(gctx, out, allowed)
		})
	}

	c.logger.Info("crawl started",
		"seeds", len(c.cfg.Seeds),
		"workers", workers,
		"max_depth", c.cfg.MaxDepth,
		"max_pages", c.cfg.MaxPages,
	)

	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("crawl stopped early", "error", err)
		}
		close(out)
		c.logger.Info("crawl finished", "visited", c.frontier.visitedCount())
	}()
	return out
}

// worker runs the frontier state machine until the page budget is reached,
// the frontier stays empty through one poll, or the context ends.
func (c *Crawler) worker(ctx context.Context, out chan<- CrawledDocument, allowed map[string]struct{}) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.frontier.visitedCount() >= c.cfg.MaxPages {
			return nil
		}

		entry, ok := c.frontier.pop()
		if !ok {
			if !c.sleep(ctx, emptyPollDelay) {
				return ctx.Err()
			}
			if entry, ok = c.frontier.pop(); !ok {
				return nil
			}
		}

		c.process(ctx, entry, out, allowed)
	}
}

func (c *Crawler) process(ctx context.Context, entry frontierEntry, out chan<- CrawledDocument, allowed map[string]struct{}) {
	if !c.frontier.claim(entry.url) {
		return
	}

	parsed, err := url.Parse(entry.url)
	if err != nil || parsed.Host == "" {
		c.metrics.PagesSkippedTotal.WithLabelValues("bad_url").Inc()
		return
	}
	if allowed != nil {
		if _, ok := allowed[parsed.Host]; !ok {
			c.metrics.PagesSkippedTotal.WithLabelValues("domain").Inc()
			return
		}
	}

	if wait := c.frontier.domainWait(parsed.Host, c.now(), domainGap); wait > 0 {
		c.metrics.RateLimitWaitTotal.Add(wait.Seconds())
		if !c.sleep(ctx, wait) {
			return
		}
	}
	if !c.sleep(ctx, c.jitter()) {
		return
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
	}
	c.frontier.stampDomain(parsed.Host, c.now())

	page, err := c.fetcher.fetch(ctx, entry.url)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotHTML):
			c.metrics.PagesSkippedTotal.WithLabelValues("not_html").Inc()
			c.logger.Debug("skipping non-HTML page", "url", entry.url)
		case errors.Is(err, apperrors.ErrFetchFailed):
			c.metrics.FetchErrorsTotal.WithLabelValues("http").Inc()
			c.logger.Warn("fetch failed", "url", entry.url, "error", err)
		default:
			c.metrics.FetchErrorsTotal.WithLabelValues("parse").Inc()
			c.logger.Warn("page extraction failed", "url", entry.url, "error", err)
		}
		return
	}
	c.metrics.PagesFetchedTotal.Inc()

	if entry.depth < c.cfg.MaxDepth {
		enqueued := 0
		for _, link := range page.links {
			if c.frontier.push(link, entry.depth+1) {
				enqueued++
			}
		}
		if enqueued > 0 {
			c.metrics.LinksEnqueuedTotal.Add(float64(enqueued))
		}
	}
	c.metrics.FrontierQueueLength.Set(float64(c.frontier.queueLen()))

	c.logger.Debug("page crawled",
		"url", entry.url,
		"depth", entry.depth,
		"links", len(page.links),
	)

	select {
	case out <- CrawledDocument{URL: entry.url, Title: page.title, Text: page.text}:
	case <-ctx.Done():
	}
}

// allowedHosts builds the host allow-list: seed hosts when stay-in-domain is
// set, plus any explicitly configured domains. A nil map means every host is
// allowed.
func (c *Crawler) allowedHosts() map[string]struct{} {
	if !c.cfg.StayInDomain && len(c.cfg.AllowedDomains) == 0 {
		return nil
	}
	hosts := make(map[string]struct{})
	if c.cfg.StayInDomain {
		for _, seed := range c.cfg.Seeds {
			if u, err := url.Parse(seed); err == nil && u.Host != "" {
				hosts[u.Host] = struct{}{}
			}
		}
	}
	for _, domain := range c.cfg.AllowedDomains {
		hosts[domain] = struct{}{}
	}
	return hosts
}

// Visited reports how many distinct URLs the crawl has claimed so far.
func (c *Crawler) Visited() int {
	return c.frontier.visitedCount()
}
