package validate

import "testing"

func TestValidateReferencesCompleteness_OK(t *testing.T) {
    md := `# Title

## References
1. Example Domain — https://example.com
2. [Go net/http](https://pkg.go.dev/net/http) — https://pkg.go.dev/net/http
`
    bad := ValidateReferencesCompleteness(md)
    if len(bad) != 0 {
        t.Fatalf("expected all references complete, got bad indices %v", bad)
    }
}

func TestValidateReferencesCompleteness_MissingURL(t *testing.T) {
    md := `# Title

## References
1. Example Domain
2. Another — https://example.com
`
    bad := ValidateReferencesCompleteness(md)
    if len(bad) != 1 || bad[0] != 1 {
        t.Fatalf("expected item 1 incomplete, got %v", bad)
    }
}

func TestValidateReferencesCompleteness_MissingTitle(t *testing.T) {
    md := `# Title

## References
1. https://example.com
2. RFC 9110 — https://www.rfc-editor.org/rfc/rfc9110
`
    bad := ValidateReferencesCompleteness(md)
    if len(bad) != 1 || bad[0] != 1 {
        t.Fatalf("expected item 1 incomplete (no title), got %v", bad)
    }
}

func TestValidateReport_IncompleteReferencesFails(t *testing.T) {
    md := `# Title
2025-01-01

Body with a cite [1].

## References
1. https://example.com
`
    if err := ValidateReport(md); err == nil {
        t.Fatalf("expected validation error for incomplete references")
    }
}



func TestKeywordOverlap_FullCoverage(t *testing.T) {
    score, missing := KeywordOverlap("Quantum computing relies on superposition and entanglement.", "quantum computing superposition")
    if score != 1 {
        t.Fatalf("expected full overlap, got %.2f (missing %v)", score, missing)
    }
    if len(missing) != 0 {
        t.Fatalf("expected no missing words, got %v", missing)
    }
}

func TestKeywordOverlap_ReportsMissingWords(t *testing.T) {
    score, missing := KeywordOverlap("This text is about cooking pasta.", "quantum computing superposition")
    if score != 0 {
        t.Fatalf("expected zero overlap, got %.2f", score)
    }
    if len(missing) != 3 {
        t.Fatalf("expected all three topic words missing, got %v", missing)
    }
}

func TestKeywordOverlap_EmptyTopicIsFullScore(t *testing.T) {
    score, missing := KeywordOverlap("anything at all", "a an the")
    if score != 1 || missing != nil {
        t.Fatalf("expected trivial topic to score 1 with no missing words, got %.2f %v", score, missing)
    }
}
