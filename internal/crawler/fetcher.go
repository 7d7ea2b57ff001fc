package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/resonantlabs/crawlspace/pkg/config"
	apperrors "github.com/resonantlabs/crawlspace/pkg/errors"
)

// page is the extracted content of one fetched HTML document.
type page struct {
	title string
	text  string
	links []string
}

// pageFetcher performs the HTTP GET and HTML extraction for one URL. It
// accepts only text/html responses and resolves links against the final
// request URL, so redirected pages resolve relative hrefs correctly.
type pageFetcher struct {
	client    *http.Client
	userAgent string
}

func newPageFetcher(cfg config.CrawlerConfig) *pageFetcher {
	return &pageFetcher{
		client:    &http.Client{Timeout: cfg.FetchTimeout.Std()},
		userAgent: cfg.UserAgent,
	}
}

func (p *pageFetcher) fetch(ctx context.Context, pageURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFetchFailed, "requesting %s: %v", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.Newf(apperrors.ErrFetchFailed, "unexpected status %d for %s", resp.StatusCode, pageURL)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/html") {
		return nil, apperrors.Newf(apperrors.ErrNotHTML, "content type %q for %s", contentType, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %s: %w", pageURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = pageURL
	}

	// resp.Request.URL reflects any redirects the client followed.
	links := extractLinks(doc, resp.Request.URL)

	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())

	return &page{title: title, text: text, links: links}, nil
}

// extractLinks resolves every a[href] against base, keeping only http(s)
// targets. Fragments are stripped so anchors within one page do not show up
// as distinct URLs.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		links = append(links, resolved.String())
	})
	return links
}
