// Package webfetch implements the Web Fetcher (C1): concurrent HTTP fetch
// with per-host politeness, main-content extraction, and bounded
// truncation. It wraps the teacher's internal/fetch.Client (timeouts,
// retries, HTTP caching) and internal/robots.Manager (politeness) with the
// deep-page extraction chain from internal/extract.
package webfetch

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepsearch/internal/extract"
	"github.com/hyperifyio/deepsearch/internal/fetch"
	"github.com/hyperifyio/deepsearch/internal/robots"
)

// Page is one successfully fetched and extracted document, indexed by its
// position in the input URL list so downstream citation numbering stays
// consistent.
type Page struct {
	Index int
	URL   string
	Title string
	Text  string
}

// Fetcher bounds in-flight requests and applies per-host politeness before
// delegating to the underlying HTTP client.
type Fetcher struct {
	Client *fetch.Client
	Robots *robots.Manager // optional; nil disables robots checks
	UserAgent string
}

// FetchMany fetches urls concurrently, bounded by concurrency, applying
// timeout per request and per_doc_char_cap to each extracted document. It
// returns entries in input order for URLs whose fetch succeeded and whose
// extracted text is non-empty; individual failures are logged at warning
// level and silently omitted. A total failure returns an empty slice, not
// an error.
func (f *Fetcher) FetchMany(ctx context.Context, urls []string, timeout time.Duration, concurrency int, perDocCharCap int) []Page {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]*Page, len(urls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if page := f.fetchOne(ctx, i, u, timeout, perDocCharCap); page != nil {
				results[i] = page
			}
		}(i, u)
	}
	wg.Wait()

	out := make([]Page, 0, len(urls))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, index int, rawURL string, timeout time.Duration, perDocCharCap int) *Page {
	if f.Robots != nil {
		if !f.allowedByRobots(ctx, rawURL) {
			log.Warn().Str("url", rawURL).Msg("skipping url disallowed by robots.txt")
			return nil
		}
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, contentType, err := f.Client.Get(reqCtx, rawURL)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("fetch failed; omitting from batch")
		return nil
	}
	if !strings.Contains(strings.ToLower(contentType), "text/html") && !strings.Contains(strings.ToLower(contentType), "xhtml") {
		log.Warn().Str("url", rawURL).Str("content_type", contentType).Msg("unsupported content type; omitting from batch")
		return nil
	}

	doc := extract.ExtractReadable(body)
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}
	text = extract.Truncate(text, perDocCharCap)

	return &Page{Index: index, URL: rawURL, Title: doc.Title, Text: text}
}

func (f *Fetcher) allowedByRobots(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	rules, _, err := f.Robots.Get(ctx, robotsURL)
	if err != nil {
		// Politeness is best-effort: an unreachable robots.txt never blocks a fetch.
		return true
	}
	return robots.Allowed(rules, f.UserAgent, u.Path)
}
