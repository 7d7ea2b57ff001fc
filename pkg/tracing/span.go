// Package tracing times the phases of a request. Spans nest through the
// context, and the root span logs the whole tree at debug level once the
// request is served. The search path uses it to split latency into engine
// scoring and feedback phases.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanCtxKey struct{}

// Span is one timed phase. All state is private; callers only annotate, end,
// and log.
type Span struct {
	name      string
	traceID   string
	startedAt time.Time
	elapsed   time.Duration

	mu       sync.Mutex
	attrs    []slog.Attr
	children []*Span
}

func newSpan(name, traceID string) *Span {
	return &Span{name: name, traceID: traceID, startedAt: time.Now()}
}

// StartSpan opens a root span under the given trace id and returns a context
// carrying it.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := newSpan(name, traceID)
	return context.WithValue(ctx, spanCtxKey{}, s), s
}

// StartChildSpan opens a span nested under the one in ctx. Without a parent
// in ctx it behaves like a root span with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := fromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}

	child := newSpan(name, parent.traceID)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanCtxKey{}, child), child
}

func fromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanCtxKey{}).(*Span)
	return s
}

// SetAttr annotates the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// End freezes the span's duration. Ending twice keeps the first measurement.
func (s *Span) End() {
	if s.elapsed == 0 {
		s.elapsed = time.Since(s.startedAt)
	}
}

// Log emits one debug line per span in the tree, naming each by its path from
// the root ("search_request/engine_search").
func (s *Span) Log() {
	s.logTree(s.name)
}

func (s *Span) logTree(path string) {
	args := []any{
		"trace_id", s.traceID,
		"span", path,
		"duration_ms", s.elapsed.Milliseconds(),
	}
	for _, attr := range s.attrs {
		args = append(args, attr)
	}
	slog.Debug("trace", args...)

	for _, child := range s.children {
		child.logTree(path + "/" + child.name)
	}
}
