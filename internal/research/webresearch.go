package research

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepsearch/internal/budget"
	"github.com/hyperifyio/deepsearch/internal/citation"
	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
	"github.com/hyperifyio/deepsearch/internal/search"
	selecter "github.com/hyperifyio/deepsearch/internal/select"
	"github.com/hyperifyio/deepsearch/internal/webfetch"
	"github.com/hyperifyio/deepsearch/internal/websearch"
)

// WebResearchConfig bundles the tunables read from environment
// configuration that the web_research node needs (spec §6.4).
type WebResearchConfig struct {
	TopK           int
	Concurrency    int
	FetchTimeout   time.Duration
	MaxTotalChars  int
	MaxPerDocChars int
}

// searchIDCounter assigns each web_research invocation its own integer
// search-id, process-wide, matching the spec's "identified by an integer
// search-id" language for short-url allocation (§4.4.1).
var searchIDCounter int64

// NextSearchID returns a fresh, process-wide unique search-id.
func NextSearchID() int {
	return int(atomic.AddInt64(&searchIDCounter, 1))
}

// WebResearch builds the web_research node (spec §4.7.3). It is dispatched
// once per new query via the graph's conditional-edge fan-out; each
// invocation carries its own query and search-id in the overlay state.
func WebResearch(inv *llmclient.Invoker, searchClient *websearch.Client, fetcher *webfetch.Fetcher, cfg WebResearchConfig) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, gcfg *graph.Config) (graph.State, error) {
		query := stringField(s, "web_research_query")
		searchID := intField(s, "web_research_search_id", 0)

		pages, preformatted, err := searchClient.Search(ctx, query, 10)
		if err != nil {
			// Spec §7: search provider failure has no local recovery; the
			// node continues with an empty result set rather than failing
			// the whole run.
			pages = nil
			preformatted = ""
		}

		topK := cfg.TopK
		if topK <= 0 {
			topK = 5
		}
		candidates := selectTopPages(pages, topK)

		urls := make([]string, 0, len(candidates))
		for _, p := range candidates {
			urls = append(urls, p.URL)
		}
		deepPages := fetcher.FetchMany(ctx, urls, cfg.FetchTimeout, cfg.Concurrency, cfg.MaxPerDocChars)

		var llmContext string
		var citationCandidates []citation.CandidatePage
		if len(deepPages) > 0 {
			llmContext = buildDeepContext(deepPages, candidates, cfg.MaxTotalChars)
			for _, p := range candidates {
				title := p.Title
				if title == "" {
					title = p.SiteName
				}
				citationCandidates = append(citationCandidates, citation.CandidatePage{Title: title, URL: p.URL})
			}
		} else {
			llmContext = preformatted
			for _, p := range pages {
				citationCandidates = append(citationCandidates, citation.CandidatePage{Title: p.Title, URL: p.URL})
			}
		}

		system := "You are a research assistant. Using ONLY the provided numbered sources, write a " +
			"grounded summary answering the query. Cite every factual claim with a bracketed numeric " +
			"marker like [N] referring to the source's number. Do not invent facts or sources."
		user := fmt.Sprintf("Query: %s\n\nSources:\n%s", query, llmContext)
		log.Debug().Int("search_id", searchID).Int("estimated_prompt_tokens", budget.EstimatePromptTokens(system, user, nil)).Msg("web_research: dispatching summary call")

		summary, err := callText(ctx, inv, gcfg.SessionID, "web_research", system, user)
		if err != nil {
			return nil, err
		}

		shortURLs := citation.AllocateShortURLs(searchID, citationCandidates)
		markers := citation.ExtractCitations(citationCandidates, shortURLs, summary)
		citedSummary := citation.InsertMarkers(summary, markers)

		var citedSources, allSources []SourceRef
		seenCited := map[string]bool{}
		for _, m := range markers {
			for _, seg := range m.Segments {
				key := citation.DedupKey(citation.Source{Label: seg.Label, RealURL: seg.RealURL})
				if seenCited[key] {
					continue
				}
				seenCited[key] = true
				citedSources = append(citedSources, SourceRef{Label: seg.Label, ShortURL: seg.ShortURL, RealURL: seg.RealURL})
			}
		}
		for _, src := range shortURLs {
			allSources = append(allSources, fromCitationSource(src))
		}

		return graph.State{
			FieldAccumulatedQueries: []string{query},
			FieldCitedSummaries:     []string{citedSummary},
			FieldSourcesGathered:    citedSources,
			FieldAllSourcesGathered: allSources,
		}, nil
	}
}

// selectTopPages applies diversity-aware selection (distinct-domain caps,
// dedup by canonical URL, longer-snippet-first) to the raw search hits
// before they're handed to the fetcher, so a single prolific domain can't
// crowd out topK with near-duplicate pages.
func selectTopPages(pages []websearch.WebPage, topK int) []websearch.WebPage {
	results := make([]search.Result, len(pages))
	for i, p := range pages {
		results[i] = search.Result{Title: p.Title, URL: p.URL, Snippet: p.Summary, Source: p.SiteName}
	}
	picked := selecter.Select(results, selecter.Options{MaxTotal: topK, PerDomain: 2, PreferPrimary: true})

	byURL := make(map[string]websearch.WebPage, len(pages))
	for _, p := range pages {
		byURL[p.URL] = p
	}
	out := make([]websearch.WebPage, 0, len(picked))
	for _, r := range picked {
		if p, ok := byURL[r.URL]; ok {
			out = append(out, p)
		}
	}
	return out
}

// buildDeepContext concatenates deep-scraped pages as "[idx] title / url /
// body" blocks, truncated to a total-character cap (spec §4.7.3 step 3).
// The indexing stays consistent with the candidates slice the pages were
// fetched from.
func buildDeepContext(pages []webfetch.Page, candidates []websearch.WebPage, maxTotalChars int) string {
	if maxTotalChars <= 0 {
		maxTotalChars = 80_000
	}
	var sb strings.Builder
	for _, p := range pages {
		title := p.Title
		if title == "" && p.Index < len(candidates) {
			title = candidates[p.Index].Title
		}
		block := fmt.Sprintf("[%d] %s / %s\n%s\n\n", p.Index+1, title, p.URL, p.Text)
		if sb.Len()+len(block) > maxTotalChars {
			remaining := maxTotalChars - sb.Len()
			if remaining <= 0 {
				break
			}
			sb.WriteString(block[:remaining])
			break
		}
		sb.WriteString(block)
	}
	return sb.String()
}
