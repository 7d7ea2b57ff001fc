package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/resonantlabs/crawlspace/internal/crawler"
	"github.com/resonantlabs/crawlspace/pkg/logger"
)

// maxRequestBytes bounds a submission body. The ceiling tracks the field
// limits enforced by ValidateDocument plus JSON framing overhead.
const maxRequestBytes = maxTextLength + maxURLLength + maxTitleLength + 4096

// Handler accepts document submissions and delivers them into the consumer
// channel, where they join crawled pages on the same indexing path.
type Handler struct {
	sink   chan<- crawler.CrawledDocument
	logger *slog.Logger
}

func NewHandler(sink chan<- crawler.CrawledDocument) *Handler {
	return &Handler{
		sink:   sink,
		logger: logger.WithComponent("ingest"),
	}
}

// Submit handles POST /api/v1/documents. The document is queued, not indexed
// inline: a full channel applies backpressure until the request context ends.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var doc crawler.CrawledDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		h.fail(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if verr := ValidateDocument(&doc); verr != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	if doc.Title == "" {
		doc.Title = doc.URL
	}

	select {
	case h.sink <- doc:
		log.Info("document queued", "url", doc.URL)
		h.respond(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case <-ctx.Done():
		log.Warn("document dropped, indexing backlog full", "url", doc.URL)
		h.fail(w, http.StatusServiceUnavailable, "indexing backlog full")
	}
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
