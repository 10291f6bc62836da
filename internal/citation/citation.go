// Package citation implements the Citation Resolver (C4): per-fetch
// short-url allocation, citation extraction and marker insertion into LLM
// summaries, and the final report's reference-list rendering.
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ShortURLPrefix is the fixed prefix for synthetic short-urls, e.g.
// "src/3-1" for the first candidate of web-research invocation 3.
const ShortURLPrefix = "src"

// CandidatePage is the minimal shape the resolver needs from a search
// result or deep-scraped page.
type CandidatePage struct {
	Title string
	URL   string
}

// Source is a citation entity: a short display label, the synthetic
// short-url used as a placeholder inside LLM text, and the real url it
// resolves to.
type Source struct {
	Label    string
	ShortURL string
	RealURL  string
}

// Segment is one citation's resolved source, as attached to a Marker.
type Segment struct {
	Label    string
	ShortURL string
	RealURL  string
}

// Marker is a located citation: a half-open [Start,End) byte range into the
// scanned text, plus the sources it resolves to. When no textual match was
// found, Start==End==len(text): the citation is anchored at end-of-text so
// it still appears in the references (spec's preserved, intentionally
// imprecise fallback).
type Marker struct {
	Start    int
	End      int
	Segments []Segment
}

// maxLabelLen bounds Source.Label per spec (<=50 chars).
const maxLabelLen = 50

// AllocateShortURLs assigns each candidate page a stable short-url of the
// form "<prefix>/<searchID>-<idx>" (1-based idx), keyed by real url. The
// mapping is stable within one web-research invocation (searchID).
func AllocateShortURLs(searchID int, pages []CandidatePage) map[string]Source {
	out := make(map[string]Source, len(pages))
	for i, p := range pages {
		if p.URL == "" {
			continue
		}
		if _, exists := out[p.URL]; exists {
			continue
		}
		shortURL := fmt.Sprintf("%s/%d-%d", ShortURLPrefix, searchID, i+1)
		out[p.URL] = Source{
			Label:    deriveLabel(p.Title, p.URL),
			ShortURL: shortURL,
			RealURL:  p.URL,
		}
	}
	return out
}

func deriveLabel(title, fallback string) string {
	s := strings.TrimSpace(title)
	if s == "" {
		s = strings.TrimSpace(fallback)
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLabelLen {
		s = strings.TrimSpace(s[:maxLabelLen])
	}
	return s
}

var (
	citeBracketNRe   = `\[%d\]`
	citeBracketWordRe = `(?i)\[citation\s+%d\]`
	citeBareWordRe    = `(?i)\bcitation\s+%d\b`
	citeSourceWordRe  = `(?i)\bsource\s+%d\b`
)

// ExtractCitations scans llmText for a reference to each candidate page (by
// its 1-based position in pages) using, in priority order: "[N]",
// "[citation N]", "citation N", "source N", the page's raw url substring,
// or its title substring. The first match wins. A page with no match is
// anchored at end-of-text.
func ExtractCitations(pages []CandidatePage, shortURLs map[string]Source, llmText string) []Marker {
	markers := make([]Marker, 0, len(pages))
	for i, p := range pages {
		src, ok := shortURLs[p.URL]
		if !ok {
			continue
		}
		n := i + 1
		start, end, found := findCitationMatch(llmText, n, p.URL, p.Title)
		if !found {
			start, end = len(llmText), len(llmText)
		}
		markers = append(markers, Marker{
			Start:    start,
			End:      end,
			Segments: []Segment{{Label: src.Label, ShortURL: src.ShortURL, RealURL: src.RealURL}},
		})
	}
	return markers
}

func findCitationMatch(text string, n int, url, title string) (int, int, bool) {
	patterns := []string{citeBracketNRe, citeBracketWordRe, citeBareWordRe, citeSourceWordRe}
	for _, pat := range patterns {
		re := regexp.MustCompile(fmt.Sprintf(pat, n))
		if loc := re.FindStringIndex(text); loc != nil {
			return loc[0], loc[1], true
		}
	}
	if url != "" {
		if idx := strings.Index(text, url); idx >= 0 {
			return idx, idx + len(url), true
		}
	}
	if title = strings.TrimSpace(title); title != "" {
		if idx := strings.Index(text, title); idx >= 0 {
			return idx, idx + len(title), true
		}
	}
	return 0, 0, false
}

// InsertMarkers re-scans text for each marker and inserts " [label](shorturl)"
// at its end offset, processing markers in descending end-offset order so
// earlier offsets stay valid.
func InsertMarkers(text string, markers []Marker) string {
	sorted := make([]Marker, len(markers))
	copy(sorted, markers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].End > sorted[j].End })

	out := text
	for _, m := range sorted {
		end := m.End
		if end > len(out) {
			end = len(out)
		}
		if end < 0 {
			end = 0
		}
		var ins strings.Builder
		for _, seg := range m.Segments {
			ins.WriteString(" [")
			ins.WriteString(seg.Label)
			ins.WriteString("](")
			ins.WriteString(seg.ShortURL)
			ins.WriteString(")")
		}
		out = out[:end] + ins.String() + out[end:]
	}
	return out
}

var (
	finalCiteRe   = regexp.MustCompile(`\[(\d+)\]`)
	refsHeadingRe = regexp.MustCompile(`(?i)^\s{0,3}#{1,6}\s*(References|参考|来源|引用|参考资料)\s*$`)
	shortURLLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(` + regexp.QuoteMeta(ShortURLPrefix) + `/(\d+)-(\d+)\)`)
)

// ResolveFinalReport implements the end-of-pipeline final reference pass
// (spec §4.4 step 4): it rewrites any remaining "[label](src/N-M)" markdown
// links to their real urls, builds a deduplicated, ordered list of cited
// Sources from the numeric suffixes of "[N]" markers in the rendered text,
// and appends a References section if one is not already present. Running
// this twice is a no-op: the short-url rewrite has nothing left to rewrite,
// and an existing References heading is left untouched.
func ResolveFinalReport(report string, allSources []Source) (string, []Source) {
	bySuffix := make(map[int]Source, len(allSources))
	for _, s := range allSources {
		if n, ok := suffixOf(s.ShortURL); ok {
			bySuffix[n] = s
		}
	}

	rewritten := rewriteShortURLs(report, allSources)

	cited := citedSourcesInOrder(rewritten, bySuffix)

	if !hasReferencesSection(rewritten) {
		rewritten = strings.TrimRight(rewritten, "\n") + "\n\n" + renderReferencesSection(cited)
	}
	return rewritten, cited
}

func rewriteShortURLs(report string, allSources []Source) string {
	bySuffixKey := make(map[string]string, len(allSources))
	for _, s := range allSources {
		bySuffixKey[s.ShortURL] = s.RealURL
	}
	return shortURLLinkRe.ReplaceAllStringFunc(report, func(m string) string {
		sub := shortURLLinkRe.FindStringSubmatch(m)
		if sub == nil {
			return m
		}
		label, searchID, idx := sub[1], sub[2], sub[3]
		shortURL := ShortURLPrefix + "/" + searchID + "-" + idx
		real, ok := bySuffixKey[shortURL]
		if !ok {
			return m
		}
		return "[" + label + "](" + real + ")"
	})
}

func suffixOf(shortURL string) (int, bool) {
	idx := strings.LastIndex(shortURL, "-")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(shortURL[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func citedSourcesInOrder(text string, bySuffix map[int]Source) []Source {
	matches := finalCiteRe.FindAllStringSubmatch(text, -1)
	seenNum := map[int]bool{}
	cited := make([]Source, 0, len(matches))
	dedupSeen := map[string]bool{}
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || seenNum[n] {
			continue
		}
		seenNum[n] = true
		src, ok := bySuffix[n]
		if !ok {
			continue
		}
		key := DedupKey(src)
		if dedupSeen[key] {
			continue
		}
		dedupSeen[key] = true
		cited = append(cited, src)
	}
	return cited
}

// DedupKey normalizes a Source for deduplication: trailing-slash-stripped
// real url plus whitespace-collapsed, lowercased label.
func DedupKey(s Source) string {
	u := strings.TrimSuffix(strings.TrimSpace(s.RealURL), "/")
	label := strings.ToLower(strings.Join(strings.Fields(s.Label), " "))
	return u + "|" + label
}

// DedupSources removes entries sharing a DedupKey, keeping the first
// occurrence (and so the earliest-discovered label/short-url pairing).
func DedupSources(sources []Source) []Source {
	seen := map[string]bool{}
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		key := DedupKey(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func hasReferencesSection(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if refsHeadingRe.MatchString(strings.TrimRight(line, "\r")) {
			return true
		}
	}
	return false
}

func renderReferencesSection(cited []Source) string {
	var sb strings.Builder
	sb.WriteString("## References\n\n")
	for i, s := range cited {
		fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, s.Label, s.RealURL)
	}
	return sb.String()
}
