package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resonantlabs/crawlspace/pkg/config"
	"github.com/resonantlabs/crawlspace/pkg/metrics"
)

// fakeClock advances only when a worker sleeps, so politeness delays cost
// nothing in wall time while their ordering stays observable.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return ctx.Err() == nil
}

func newTestCrawler(cfg config.CrawlerConfig, clock *fakeClock) *Crawler {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "crawlspace-test/0.1"
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = config.Duration(5 * time.Second)
	}
	if cfg.ChannelCapacity == 0 {
		cfg.ChannelCapacity = 16
	}
	c := New(cfg, metrics.Default())
	c.now = clock.now
	c.sleep = clock.sleep
	c.jitter = func() time.Duration { return 150 * time.Millisecond }
	return c
}

// recordingServer serves small interlinked HTML pages and records the fake
// time of every request per path.
type recordingServer struct {
	*httptest.Server

	mu    sync.Mutex
	hits  map[string]int
	times []time.Time
}

func newRecordingServer(clock *fakeClock, pages map[string]string) *recordingServer {
	rs := &recordingServer{hits: make(map[string]int)}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.hits[r.URL.Path]++
		rs.times = append(rs.times, clock.now())
		rs.mu.Unlock()

		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	return rs
}

func (rs *recordingServer) hitCount(path string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.hits[path]
}

func (rs *recordingServer) totalHits() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	total := 0
	for _, n := range rs.hits {
		total += n
	}
	return total
}

func (rs *recordingServer) requestTimes() []time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]time.Time(nil), rs.times...)
}

func drain(ch <-chan CrawledDocument) []CrawledDocument {
	var docs []CrawledDocument
	for doc := range ch {
		docs = append(docs, doc)
	}
	return docs
}

func TestCrawlStreamsDocuments(t *testing.T) {
	clock := newFakeClock()
	srv := newRecordingServer(clock, map[string]string{
		"/": `<html><head><title>Home</title></head>
			<body><p>welcome to the archive</p><a href="/about">about</a></body></html>`,
		"/about": `<html><head><title>About</title></head>
			<body><p>what this site is for</p></body></html>`,
	})
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     2,
		MaxPages:     10,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 2)

	byURL := make(map[string]CrawledDocument)
	for _, doc := range docs {
		byURL[doc.URL] = doc
	}
	home := byURL[srv.URL+"/"]
	require.Equal(t, "Home", home.Title)
	require.Contains(t, home.Text, "welcome to the archive")

	about := byURL[srv.URL+"/about"]
	require.Equal(t, "About", about.Title)
	require.Contains(t, about.Text, "what this site is for")
}

func TestCrawlRespectsPageBudget(t *testing.T) {
	clock := newFakeClock()
	srv := newRecordingServer(clock, map[string]string{
		"/": `<html><head><title>Hub</title></head><body>
			<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a><a href="/d">d</a>
			hub text</body></html>`,
		"/a": `<html><head><title>A</title></head><body>alpha text</body></html>`,
		"/b": `<html><head><title>B</title></head><body>beta text</body></html>`,
		"/c": `<html><head><title>C</title></head><body>gamma text</body></html>`,
		"/d": `<html><head><title>D</title></head><body>delta text</body></html>`,
	})
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     3,
		MaxPages:     2,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 2)
	require.Equal(t, 2, srv.totalHits())
	require.Equal(t, 2, c.Visited())
}

func TestCrawlNeverRefetchesVisitedURLs(t *testing.T) {
	clock := newFakeClock()
	srv := newRecordingServer(clock, map[string]string{
		"/": `<html><head><title>Loop</title></head><body>
			<a href="/a">a</a><a href="/a">a again</a>loop text</body></html>`,
		"/a": `<html><head><title>A</title></head><body>
			<a href="/">back home</a><a href="/a">self</a>leaf text</body></html>`,
	})
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     5,
		MaxPages:     50,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 2)
	require.Equal(t, 1, srv.hitCount("/"))
	require.Equal(t, 1, srv.hitCount("/a"))
}

func TestCrawlHonorsDepthLimit(t *testing.T) {
	clock := newFakeClock()
	srv := newRecordingServer(clock, map[string]string{
		"/":   `<html><head><title>Root</title></head><body><a href="/d1">one</a>root text</body></html>`,
		"/d1": `<html><head><title>D1</title></head><body><a href="/d2">two</a>first hop</body></html>`,
		"/d2": `<html><head><title>D2</title></head><body><a href="/d3">three</a>second hop</body></html>`,
		"/d3": `<html><head><title>D3</title></head><body>third hop</body></html>`,
	})
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     1,
		MaxPages:     50,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 2)
	require.Equal(t, 1, srv.hitCount("/"))
	require.Equal(t, 1, srv.hitCount("/d1"))
	require.Zero(t, srv.hitCount("/d2"))
	require.Zero(t, srv.hitCount("/d3"))
}

func TestCrawlSpacesSameHostRequests(t *testing.T) {
	clock := newFakeClock()
	srv := newRecordingServer(clock, map[string]string{
		"/": `<html><head><title>Hub</title></head><body>
			<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>hub</body></html>`,
		"/a": `<html><head><title>A</title></head><body>alpha</body></html>`,
		"/b": `<html><head><title>B</title></head><body>beta</body></html>`,
		"/c": `<html><head><title>C</title></head><body>gamma</body></html>`,
	})
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     2,
		MaxPages:     50,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 4)

	times := srv.requestTimes()
	require.Len(t, times, 4)
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		require.GreaterOrEqual(t, gap, domainGap,
			"request %d followed its predecessor after only %v", i, gap)
	}
}

func TestCrawlStaysInSeedDomain(t *testing.T) {
	clock := newFakeClock()
	srv := newRecordingServer(clock, map[string]string{
		"/": `<html><head><title>Local</title></head><body>
			<a href="https://elsewhere.example/x">external</a>
			<a href="/here">internal</a>local text</body></html>`,
		"/here": `<html><head><title>Here</title></head><body>still local</body></html>`,
	})
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     3,
		MaxPages:     50,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 2)
	for _, doc := range docs {
		require.NotContains(t, doc.URL, "elsewhere.example")
	}
	// The external URL was claimed, then filtered before any fetch.
	require.Equal(t, 3, c.Visited())
	require.Equal(t, 2, srv.totalHits())
}

func TestCrawlSkipsNonHTMLTargets(t *testing.T) {
	clock := newFakeClock()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Index</title></head><body>
			<a href="/feed.json">feed</a>index text</body></html>`)
	})
	mux.HandleFunc("/feed.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": []}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      1,
		MaxDepth:     2,
		MaxPages:     50,
		StayInDomain: true,
	}, clock)

	docs := drain(c.Crawl(context.Background()))
	require.Len(t, docs, 1)
	require.Equal(t, srv.URL+"/", docs[0].URL)
}

func TestCrawlStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	// Every page links to a fresh one, so only cancellation can end the crawl.
	next := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		next++
		n := next
		mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><head><title>Page %d</title></head><body>
			<a href="/p%d">next</a>page %d body</body></html>`, n, n, n)
	}))
	defer srv.Close()

	c := newTestCrawler(config.CrawlerConfig{
		Seeds:        []string{srv.URL + "/"},
		Workers:      2,
		MaxDepth:     1_000_000,
		MaxPages:     1_000_000,
		StayInDomain: true,
	}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Crawl(ctx)

	first, ok := <-ch
	require.True(t, ok)
	require.NotEmpty(t, first.URL)
	cancel()

	done := make(chan struct{})
	go func() {
		drain(ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not shut down after cancel")
	}
}
