package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout cancels the request context after limit and answers 504 if the
// handler has not started writing by then. The handler keeps running in its
// goroutine but its late writes are discarded.
func Timeout(limit time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			ew := &exclusiveWriter{ResponseWriter: w}
			finished := make(chan struct{})
			go func() {
				next.ServeHTTP(ew, r.WithContext(ctx))
				close(finished)
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				ew.claimForTimeout(func() {
					slog.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"limit", limit,
					)
					http.Error(w, `{"error":"request timed out"}`, http.StatusGatewayTimeout)
				})
			}
		})
	}
}

const (
	writerUnclaimed = iota
	writerHandler
	writerTimeout
)

// exclusiveWriter gives the response to whichever side writes first, the
// handler or the timeout error, and silently drops the loser's writes so the
// two cannot interleave on the wire.
type exclusiveWriter struct {
	http.ResponseWriter
	mu     sync.Mutex
	winner int
}

func (ew *exclusiveWriter) handlerWins() bool {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	if ew.winner == writerUnclaimed {
		ew.winner = writerHandler
	}
	return ew.winner == writerHandler
}

// claimForTimeout runs fn only if the handler has not written anything yet.
func (ew *exclusiveWriter) claimForTimeout(fn func()) {
	ew.mu.Lock()
	if ew.winner != writerUnclaimed {
		ew.mu.Unlock()
		return
	}
	ew.winner = writerTimeout
	ew.mu.Unlock()
	fn()
}

func (ew *exclusiveWriter) WriteHeader(code int) {
	if ew.handlerWins() {
		ew.ResponseWriter.WriteHeader(code)
	}
}

func (ew *exclusiveWriter) Write(b []byte) (int, error) {
	if ew.handlerWins() {
		return ew.ResponseWriter.Write(b)
	}
	return len(b), nil
}
