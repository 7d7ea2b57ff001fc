package crawler

import (
	"sync"
	"time"
)

type frontierEntry struct {
	url   string
	depth int
}

// frontier is the crawl state shared by all workers: a FIFO queue of
// (url, depth) pairs, the visited set, and per-domain last-access stamps.
// One mutex guards all three; it is held only for map and slice operations,
// never across I/O or sleeps.
type frontier struct {
	mu         sync.Mutex
	queue      []frontierEntry
	visited    map[string]struct{}
	domainLast map[string]time.Time
}

func newFrontier() *frontier {
	return &frontier{
		visited:    make(map[string]struct{}),
		domainLast: make(map[string]time.Time),
	}
}

// push enqueues url at depth unless it has already been visited. It reports
// whether the URL was enqueued. Duplicate queue entries for a not-yet-visited
// URL are possible; claim resolves them at pop time.
func (f *frontier) push(url string, depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visited[url]; ok {
		return false
	}
	f.queue = append(f.queue, frontierEntry{url: url, depth: depth})
	return true
}

// pop removes and returns the frontier head.
func (f *frontier) pop() (frontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return frontierEntry{}, false
	}
	head := f.queue[0]
	f.queue = f.queue[1:]
	return head, true
}

// claim marks url visited and reports whether this caller won the claim.
// Marking happens before the fetch so no second worker picks up the same
// URL while it is in flight.
func (f *frontier) claim(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visited[url]; ok {
		return false
	}
	f.visited[url] = struct{}{}
	return true
}

func (f *frontier) visitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

func (f *frontier) queueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// domainWait returns how long the caller must still wait before fetching
// from host to keep the per-domain gap. The wait itself happens outside the
// lock.
func (f *frontier) domainWait(host string, now time.Time, gap time.Duration) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.domainLast[host]
	if !ok {
		return 0
	}
	if elapsed := now.Sub(last); elapsed < gap {
		return gap - elapsed
	}
	return 0
}

// stampDomain records a fetch against host under a fresh lock acquisition.
// Callers stamp after all politeness sleeps, immediately before the fetch,
// so back-to-back requests to one host stay a full gap apart.
func (f *frontier) stampDomain(host string, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domainLast[host] = now
}
