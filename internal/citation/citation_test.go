package citation

import "testing"

func TestAllocateShortURLs_StableAndDeduped(t *testing.T) {
	pages := []CandidatePage{
		{Title: "Paris - Wikipedia", URL: "https://en.wikipedia.org/wiki/Paris"},
		{Title: "Paris again", URL: "https://en.wikipedia.org/wiki/Paris"},
		{Title: "Eiffel Tower", URL: "https://example.com/eiffel"},
	}
	out := AllocateShortURLs(3, pages)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique urls, got %d", len(out))
	}
	if out["https://en.wikipedia.org/wiki/Paris"].ShortURL != "src/3-1" {
		t.Fatalf("unexpected short url: %+v", out["https://en.wikipedia.org/wiki/Paris"])
	}
	if out["https://example.com/eiffel"].ShortURL != "src/3-3" {
		t.Fatalf("expected idx to follow original position, got %+v", out["https://example.com/eiffel"])
	}
}

func TestExtractCitations_BracketNumberMatch(t *testing.T) {
	pages := []CandidatePage{
		{Title: "Paris - Wikipedia", URL: "https://en.wikipedia.org/wiki/Paris"},
	}
	shortURLs := AllocateShortURLs(1, pages)
	text := "Paris is the capital of France [1]."
	markers := ExtractCitations(pages, shortURLs, text)
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	m := markers[0]
	if text[m.Start:m.End] != "[1]" {
		t.Fatalf("expected marker to span '[1]', got %q", text[m.Start:m.End])
	}
}

func TestExtractCitations_FallsBackToEndOfText(t *testing.T) {
	pages := []CandidatePage{
		{Title: "Unreferenced Page", URL: "https://example.com/unref"},
	}
	shortURLs := AllocateShortURLs(1, pages)
	text := "This text never mentions the source at all."
	markers := ExtractCitations(pages, shortURLs, text)
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	if markers[0].Start != len(text) || markers[0].End != len(text) {
		t.Fatalf("expected end-of-text anchor, got %+v", markers[0])
	}
}

func TestInsertMarkers_DescendingOffsetsPreserveEarlierPositions(t *testing.T) {
	text := "Alpha claim. Beta claim."
	markers := []Marker{
		{Start: 11, End: 11, Segments: []Segment{{Label: "Alpha Source", ShortURL: "src/1-1", RealURL: "https://a.example"}}},
		{Start: 23, End: 23, Segments: []Segment{{Label: "Beta Source", ShortURL: "src/1-2", RealURL: "https://b.example"}}},
	}
	out := InsertMarkers(text, markers)
	want := "Alpha claim [Alpha Source](src/1-1). Beta claim [Beta Source](src/1-2)."
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestResolveFinalReport_RewritesShortURLsAndAppendsReferences(t *testing.T) {
	report := "Paris is lovely [1]. See [Eiffel Tower](src/2-3) for more."
	sources := []Source{
		{Label: "Paris - Wikipedia", ShortURL: "src/2-1", RealURL: "https://en.wikipedia.org/wiki/Paris"},
		{Label: "Eiffel Tower", ShortURL: "src/2-3", RealURL: "https://example.com/eiffel"},
	}
	out, cited := ResolveFinalReport(report, sources)

	if !containsAll(out, "[Eiffel Tower](https://example.com/eiffel)") {
		t.Fatalf("expected short url rewritten to real url, got %q", out)
	}
	if !containsAll(out, "## References") {
		t.Fatalf("expected a references section to be appended, got %q", out)
	}
	if len(cited) != 1 || cited[0].RealURL != "https://en.wikipedia.org/wiki/Paris" {
		t.Fatalf("expected only the [1]-cited source, got %+v", cited)
	}
}

func TestResolveFinalReport_IdempotentOnSecondPass(t *testing.T) {
	report := "Paris is lovely [1]."
	sources := []Source{
		{Label: "Paris - Wikipedia", ShortURL: "src/2-1", RealURL: "https://en.wikipedia.org/wiki/Paris"},
	}
	first, _ := ResolveFinalReport(report, sources)
	second, cited2 := ResolveFinalReport(first, sources)
	if first != second {
		t.Fatalf("expected idempotent resolution, first=%q second=%q", first, second)
	}
	if len(cited2) != 1 {
		t.Fatalf("expected stable citation list on second pass, got %+v", cited2)
	}
}

func TestDedupSources_CollapsesTrailingSlashAndWhitespaceVariants(t *testing.T) {
	sources := []Source{
		{Label: "Paris  Wikipedia", ShortURL: "src/1-1", RealURL: "https://en.wikipedia.org/wiki/Paris/"},
		{Label: "paris wikipedia", ShortURL: "src/2-1", RealURL: "https://en.wikipedia.org/wiki/Paris"},
	}
	out := DedupSources(sources)
	if len(out) != 1 {
		t.Fatalf("expected dedup to collapse to 1 source, got %d: %+v", len(out), out)
	}
}

func containsAll(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
