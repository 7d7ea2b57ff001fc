// Command loadtest drives a mixed search-and-ingest workload at running
// crawlspace services and reports per-operation throughput, latency
// quantiles, status counts, and the server-side cache hit rate.
//
// Usage:
//
//	go run ./cmd/loadtest -search-url http://localhost:8080 -workers 10 -duration 30s -write-ratio 0.2
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type options struct {
	searchURL  string
	ingestURL  string
	workers    int
	duration   time.Duration
	writeRatio float64
	limit      int
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.searchURL, "search-url", "http://localhost:8080", "base URL of the searcher service")
	flag.StringVar(&opts.ingestURL, "ingest-url", "http://localhost:8081", "base URL of the indexer service")
	flag.IntVar(&opts.workers, "workers", 10, "concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "how long to run")
	flag.Float64Var(&opts.writeRatio, "write-ratio", 0.2, "fraction of requests that submit documents")
	flag.IntVar(&opts.limit, "limit", 10, "result limit per search")
	flag.Parse()
	return opts
}

// Latencies land in log-spaced buckets so quantiles cost no per-request
// allocation. Quantile answers carry bucket granularity, which is plenty for
// a load report.
var bucketBounds = func() []time.Duration {
	var b []time.Duration
	for d := 50 * time.Microsecond; d < 20*time.Second; d = d * 5 / 4 {
		b = append(b, d)
	}
	return b
}()

type histogram struct {
	counts []atomic.Int64
	total  atomic.Int64
	sumNS  atomic.Int64
	minNS  atomic.Int64
	maxNS  atomic.Int64
}

func newHistogram() *histogram {
	h := &histogram{counts: make([]atomic.Int64, len(bucketBounds)+1)}
	h.minNS.Store(math.MaxInt64)
	return h
}

func (h *histogram) observe(d time.Duration) {
	ns := d.Nanoseconds()
	h.total.Add(1)
	h.sumNS.Add(ns)
	for {
		cur := h.minNS.Load()
		if ns >= cur || h.minNS.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := h.maxNS.Load()
		if ns <= cur || h.maxNS.CompareAndSwap(cur, ns) {
			break
		}
	}
	i := sort.Search(len(bucketBounds), func(i int) bool { return d < bucketBounds[i] })
	h.counts[i].Add(1)
}

// quantile returns the upper bound of the bucket holding the q-th sample.
func (h *histogram) quantile(q float64) time.Duration {
	n := h.total.Load()
	if n == 0 {
		return 0
	}
	rank := int64(math.Ceil(q * float64(n)))
	var seen int64
	for i := range h.counts {
		seen += h.counts[i].Load()
		if seen >= rank {
			if i < len(bucketBounds) {
				return bucketBounds[i]
			}
			return time.Duration(h.maxNS.Load())
		}
	}
	return time.Duration(h.maxNS.Load())
}

func (h *histogram) mean() time.Duration {
	n := h.total.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(h.sumNS.Load() / n)
}

// recorder accumulates results for one operation type.
type recorder struct {
	op       string
	requests atomic.Int64
	netErrs  atomic.Int64
	statuses [600]atomic.Int64
	lat      *histogram
}

func newRecorder(op string) *recorder {
	return &recorder{op: op, lat: newHistogram()}
}

func (r *recorder) record(status int, d time.Duration, err error) {
	r.requests.Add(1)
	if err != nil {
		r.netErrs.Add(1)
		return
	}
	if status >= 0 && status < len(r.statuses) {
		r.statuses[status].Add(1)
	}
	r.lat.observe(d)
}

func (r *recorder) print(elapsed time.Duration) {
	n := r.requests.Load()
	fmt.Printf("%-7s %8d req  %8.1f/s", r.op, n, float64(n)/elapsed.Seconds())
	if r.lat.total.Load() > 0 {
		fmt.Printf("  mean %-9s p50 %-9s p90 %-9s p99 %-9s max %s",
			r.lat.mean().Round(10*time.Microsecond),
			r.lat.quantile(0.50), r.lat.quantile(0.90), r.lat.quantile(0.99),
			time.Duration(r.lat.maxNS.Load()).Round(10*time.Microsecond))
	}
	if e := r.netErrs.Load(); e > 0 {
		fmt.Printf("  net-errors %d", e)
	}
	fmt.Println()
}

// Terms double as search queries and as generated document bodies, so writes
// feed the vocabulary the reads query against.
var terms = []string{
	"crawler", "frontier", "politeness", "depth", "budget", "jitter",
	"vector", "sparse", "prime", "token", "vocabulary", "entropy",
	"resonance", "reversibility", "persistence", "buffering", "quantum",
	"checkpoint", "snippet", "biorthogonal", "projection", "feedback",
}

func sampleTerms(rng *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = terms[rng.Intn(len(terms))]
	}
	return strings.Join(parts, " ")
}

func fire(ctx context.Context, client *http.Client, method, target string, body []byte) (int, time.Duration, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, elapsed, nil
}

func worker(ctx context.Context, id int, opts options, client *http.Client, search, submit *recorder, seq *atomic.Int64) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(id)<<32))
	for ctx.Err() == nil {
		var (
			status int
			dur    time.Duration
			err    error
			rec    *recorder
		)
		if rng.Float64() < opts.writeRatio {
			rec = submit
			doc := map[string]string{
				"url":   fmt.Sprintf("https://loadtest.invalid/doc/%d", seq.Add(1)),
				"title": sampleTerms(rng, 3),
				"text":  sampleTerms(rng, 40),
			}
			payload, _ := json.Marshal(doc)
			status, dur, err = fire(ctx, client, http.MethodPost, opts.ingestURL+"/api/v1/documents", payload)
		} else {
			rec = search
			q := url.Values{}
			q.Set("q", sampleTerms(rng, 1+rng.Intn(3)))
			q.Set("limit", strconv.Itoa(opts.limit))
			status, dur, err = fire(ctx, client, http.MethodGet, opts.searchURL+"/api/v1/search?"+q.Encode(), nil)
		}
		if err != nil && ctx.Err() != nil {
			return
		}
		rec.record(status, dur, err)
	}
}

// cacheCounters reads the server-side cache counters from the stats endpoint.
// ok is false when the service is unreachable or caching is disabled.
func cacheCounters(searchURL string) (hits, misses int64, ok bool) {
	resp, err := http.Get(searchURL + "/api/v1/stats")
	if err != nil {
		return 0, 0, false
	}
	defer resp.Body.Close()

	var body struct {
		Cache struct {
			Hits   *int64 `json:"hits"`
			Misses *int64 `json:"misses"`
		} `json:"cache"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, false
	}
	if body.Cache.Hits == nil || body.Cache.Misses == nil {
		return 0, 0, false
	}
	return *body.Cache.Hits, *body.Cache.Misses, true
}

func printStatuses(recs ...*recorder) {
	totals := map[int]int64{}
	for _, r := range recs {
		for code := range r.statuses {
			if n := r.statuses[code].Load(); n > 0 {
				totals[code] += n
			}
		}
	}
	if len(totals) == 0 {
		return
	}
	codes := make([]int, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	var parts []string
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%d x%d", code, totals[code]))
	}
	fmt.Printf("status: %s\n", strings.Join(parts, "  "))
}

func main() {
	opts := parseFlags()

	fmt.Printf("crawlspace loadtest: %d workers, %s, %.0f%% writes\n",
		opts.workers, opts.duration, opts.writeRatio*100)
	fmt.Printf("search %s  ingest %s\n\n", opts.searchURL, opts.ingestURL)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.workers * 2,
			MaxIdleConnsPerHost: opts.workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	hitsBefore, missesBefore, cacheOK := cacheCounters(opts.searchURL)

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	search := newRecorder("search")
	submit := newRecorder("submit")
	var seq atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(ctx, id, opts, client, search, submit, &seq)
		}(i)
	}

	go func() {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				n := search.requests.Load() + submit.requests.Load()
				fmt.Printf("  %s elapsed, %d requests\n", time.Since(start).Round(time.Second), n)
			}
		}
	}()

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println()
	search.print(elapsed)
	if opts.writeRatio > 0 {
		submit.print(elapsed)
	}
	printStatuses(search, submit)

	if cacheOK {
		if hitsAfter, missesAfter, ok := cacheCounters(opts.searchURL); ok {
			hits, misses := hitsAfter-hitsBefore, missesAfter-missesBefore
			if total := hits + misses; total > 0 {
				fmt.Printf("cache: %d hits / %d misses (%.1f%% hit rate)\n",
					hits, misses, float64(hits)/float64(total)*100)
			}
		}
	}

	if search.requests.Load()+submit.requests.Load() == 0 {
		fmt.Println("no requests completed; are the services running?")
		os.Exit(1)
	}
}
