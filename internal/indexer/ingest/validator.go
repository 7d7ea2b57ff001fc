// Package ingest exposes the HTTP document submission endpoint. Any fetcher
// that can produce a CrawledDocument can feed the indexing pipeline through
// it, interchangeably with the built-in crawler.
package ingest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/resonantlabs/crawlspace/internal/crawler"
)

// Field limits for submitted documents. Text is capped at 1 MiB, well above
// what the crawler extracts from typical pages.
const (
	maxURLLength   = 2048
	maxTitleLength = 1024
	maxTextLength  = 1 << 20
)

// ValidationError reports every rejected field at once so a client can fix a
// submission in a single round trip.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "invalid document: " + strings.Join(parts, ", ")
}

// ValidateDocument checks that a submitted document carries an absolute
// http(s) URL, non-empty text, and bounded field sizes. It returns nil when
// the document is acceptable.
func ValidateDocument(doc *crawler.CrawledDocument) *ValidationError {
	fields := map[string]string{}
	if msg := checkURL(doc.URL); msg != "" {
		fields["url"] = msg
	}
	if len(doc.Title) > maxTitleLength {
		fields["title"] = fmt.Sprintf("longer than %d characters", maxTitleLength)
	}
	if msg := checkText(doc.Text); msg != "" {
		fields["text"] = msg
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func checkURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "required"
	}
	if len(raw) > maxURLLength {
		return fmt.Sprintf("longer than %d characters", maxURLLength)
	}
	parsed, err := url.Parse(raw)
	switch {
	case err != nil, parsed.Host == "":
		return "must be an absolute URL"
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		return "scheme must be http or https"
	}
	return ""
}

func checkText(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "required"
	}
	if len(trimmed) > maxTextLength {
		return fmt.Sprintf("longer than %d bytes", maxTextLength)
	}
	return ""
}
