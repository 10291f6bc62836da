// Package websearch implements the Search Provider Client (C2): queries an
// external web-search API and normalizes results, following the wire
// contract in spec §4.2 (POST {query, freshness, summary, count}; provider
// envelope with its own status code).
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebPage is one normalized search result.
type WebPage struct {
	Title     string
	URL       string
	SiteName  string
	Summary   string
	CrawlDate string
}

// ErrorKind classifies a search failure per spec §4.2.
type ErrorKind int

const (
	ErrConfigMissing ErrorKind = iota
	ErrUpstreamNon200
	ErrUpstreamErrorCode
	ErrNetwork
)

// SearchError wraps a classified search failure.
type SearchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("websearch: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("websearch: %s", e.Message)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Client queries a configured search endpoint.
type Client struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
}

type requestBody struct {
	Query     string `json:"query"`
	Freshness string `json:"freshness"`
	Summary   bool   `json:"summary"`
	Count     int    `json:"count"`
}

type rawPage struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	SiteName    string `json:"siteName"`
	Snippet     string `json:"snippet"`
	Summary     string `json:"summary"`
	DateCrawled string `json:"dateLastCrawled"`
}

type providerEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		WebPages struct {
			Value []rawPage `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

// Search queries the configured endpoint and returns normalized pages plus
// the provider's preformatted context text (a fallback for when deep
// scraping yields nothing downstream).
func (c *Client) Search(ctx context.Context, query string, count int) ([]WebPage, string, error) {
	if c.Endpoint == "" {
		return nil, "", &SearchError{Kind: ErrConfigMissing, Message: "search endpoint not configured"}
	}
	if count <= 0 {
		count = 10
	}

	payload, err := json.Marshal(requestBody{Query: query, Freshness: "noLimit", Summary: true, Count: count})
	if err != nil {
		return nil, "", &SearchError{Kind: ErrNetwork, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", &SearchError{Kind: ErrNetwork, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", &SearchError{Kind: ErrNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &SearchError{Kind: ErrUpstreamNon200, Message: fmt.Sprintf("upstream status %d", resp.StatusCode)}
	}

	var envelope providerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, "", &SearchError{Kind: ErrNetwork, Message: "decode response", Err: err}
	}
	if envelope.Code != 0 && envelope.Code != 200 {
		return nil, "", &SearchError{Kind: ErrUpstreamErrorCode, Message: envelope.Message}
	}

	pages := make([]WebPage, 0, len(envelope.Data.WebPages.Value))
	for _, rp := range envelope.Data.WebPages.Value {
		summary := strings.TrimSpace(rp.Summary)
		if summary == "" {
			summary = strings.TrimSpace(rp.Snippet)
		}
		pages = append(pages, WebPage{
			Title:     strings.TrimSpace(rp.Name),
			URL:       strings.TrimSpace(rp.URL),
			SiteName:  strings.TrimSpace(rp.SiteName),
			Summary:   summary,
			CrawlDate: strings.TrimSpace(rp.DateCrawled),
		})
	}
	return pages, formatPreformatted(pages), nil
}

// formatPreformatted renders pages as numbered [citation N] blocks so the
// web-research node can fall back to this text when deep scraping yields
// nothing.
func formatPreformatted(pages []WebPage) string {
	var sb strings.Builder
	for i, p := range pages {
		fmt.Fprintf(&sb, "[citation %d]\nTitle: %s\nURL: %s\nSite: %s\nCrawled: %s\nSummary: %s\n\n",
			i+1, p.Title, p.URL, p.SiteName, p.CrawlDate, p.Summary)
	}
	return sb.String()
}
