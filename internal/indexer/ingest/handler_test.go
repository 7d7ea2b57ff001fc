package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/resonantlabs/crawlspace/internal/crawler"
)

func postDocument(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	return rec
}

func TestSubmitQueuesValidDocument(t *testing.T) {
	sink := make(chan crawler.CrawledDocument, 1)
	h := NewHandler(sink)

	rec := postDocument(t, h,
		`{"url":"https://site.test/page","title":"Page","text":"some page text"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "queued", resp["status"])

	doc := <-sink
	require.Equal(t, "https://site.test/page", doc.URL)
	require.Equal(t, "Page", doc.Title)
	require.Equal(t, "some page text", doc.Text)
}

func TestSubmitDefaultsTitleToURL(t *testing.T) {
	sink := make(chan crawler.CrawledDocument, 1)
	h := NewHandler(sink)

	rec := postDocument(t, h, `{"url":"https://site.test/untitled","text":"body"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	doc := <-sink
	require.Equal(t, "https://site.test/untitled", doc.Title)
}

func TestSubmitRejectsInvalidJSON(t *testing.T) {
	h := NewHandler(make(chan crawler.CrawledDocument, 1))
	rec := postDocument(t, h, `{"url": broken`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing url", `{"text":"body"}`, "url"},
		{"relative url", `{"url":"/just/a/path","text":"body"}`, "url"},
		{"ftp scheme", `{"url":"ftp://site.test/f","text":"body"}`, "url"},
		{"empty text", `{"url":"https://site.test/","text":"   "}`, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(make(chan crawler.CrawledDocument, 1))
			rec := postDocument(t, h, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, "validation failed", resp.Error)
			require.Contains(t, resp.Fields, tt.field)
		})
	}
}

func TestSubmitRejectsOversizedBody(t *testing.T) {
	h := NewHandler(make(chan crawler.CrawledDocument, 1))
	huge := strings.Repeat("a", maxRequestBytes)
	rec := postDocument(t, h, `{"url":"https://site.test/big","text":"`+huge+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestValidationErrorMessageSortsFields(t *testing.T) {
	verr := ValidateDocument(&crawler.CrawledDocument{})
	require.NotNil(t, verr)
	require.Equal(t, "invalid document: text: required, url: required", verr.Error())
}

func TestSubmitTimesOutWhenQueueFull(t *testing.T) {
	// No reader on an unbuffered channel, so the send can only time out.
	h := NewHandler(make(chan crawler.CrawledDocument))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents",
		strings.NewReader(`{"url":"https://site.test/","text":"body"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Submit(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
