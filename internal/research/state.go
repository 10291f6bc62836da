// Package research implements the domain graph nodes (C7): plan, query
// generation, parallel web research, reflection, quality/fact/relevance
// assessment, summary optimization, and final report assembly.
package research

import (
	"github.com/hyperifyio/deepsearch/internal/citation"
	"github.com/hyperifyio/deepsearch/internal/graph"
)

// ResearchPlan is the structured output of generate_research_plan.
type ResearchPlan struct {
	ResearchTopic     string   `json:"research_topic"`
	SubTopics         []string `json:"sub_topics"`
	ResearchQuestions []string `json:"research_questions"`
	Rationale         string   `json:"rationale"`
}

// SourceRef is a citation-bearing source attached to a web_research result.
type SourceRef struct {
	Label    string `json:"label"`
	ShortURL string `json:"short_url"`
	RealURL  string `json:"real_url"`
}

func fromCitationSource(s citation.Source) SourceRef {
	return SourceRef{Label: s.Label, ShortURL: s.ShortURL, RealURL: s.RealURL}
}

func toCitationSources(refs []SourceRef) []citation.Source {
	out := make([]citation.Source, 0, len(refs))
	for _, r := range refs {
		out = append(out, citation.Source{Label: r.Label, ShortURL: r.ShortURL, RealURL: r.RealURL})
	}
	return out
}

// QualitySubState is the output of assess_content_quality.
type QualitySubState struct {
	Score      float64  `json:"score"`
	Assessment string   `json:"assessment"`
	Gaps       []string `json:"gaps"`
}

// FactPair zips one verified fact with its asserted source, or one
// unsupported claim with the reason it could not be verified.
type FactPair struct {
	Fact   string `json:"fact"`
	Source string `json:"source"`
}

// FactSubState is the output of verify_facts.
type FactSubState struct {
	Score              float64    `json:"score"`
	Assessment         string     `json:"assessment"`
	VerifiedFacts      []FactPair `json:"verified_facts"`
	UnsupportedClaims  []FactPair `json:"unsupported_claims"`
}

// RelevanceSubState is the output of assess_relevance.
type RelevanceSubState struct {
	Score      float64  `json:"score"`
	Assessment string   `json:"assessment"`
	OffTopics  []string `json:"off_topics"`
}

// OptimizationResult is the output of optimize_summary.
type OptimizationResult struct {
	KeyInsights      []string `json:"key_insights"`
	ActionableItems  []string `json:"actionable_items"`
	ConfidenceLevel  string   `json:"confidence_level"`
	FinalConfidence  float64  `json:"final_confidence_score"`
}

// State field names, used as graph.State keys throughout the research graph.
const (
	FieldQuery                = "query"
	FieldMessages             = "messages"
	FieldPlan                 = "plan"
	FieldLoopCount            = "loop_count"
	FieldMaxLoops             = "max_loops"
	FieldInitialQueryCount    = "initial_query_count"
	FieldAccumulatedQueries   = "accumulated_queries"
	FieldNewQueriesEnglish    = "new_queries_english"
	FieldNewQueriesDisplay    = "new_queries_display"
	FieldUnansweredQuestions  = "unanswered_questions"
	FieldCitedSummaries       = "cited_summaries"
	FieldSourcesGathered      = "sources_gathered"
	FieldAllSourcesGathered   = "all_sources_gathered"
	FieldIsSufficient         = "is_sufficient"
	FieldKnowledgeGap         = "knowledge_gap"
	FieldQuality              = "quality"
	FieldFacts                = "facts"
	FieldRelevance            = "relevance"
	FieldOptimization         = "optimization"
	FieldVerificationReport   = "verification_report"
	FieldAnswer               = "answer"
	FieldMarkdownReport       = "markdown_report"
	FieldSearchIDCounter      = "search_id_counter"
	FieldReportFormat         = "report_format"
	FieldReasoningModel       = "reasoning_model"
)

// Reducers is the declared per-field merge table for the research graph's
// OverallState, per spec §9: append fields concatenate, everything else is
// last-write-wins.
func Reducers() graph.ReducerTable {
	return graph.ReducerTable{
		FieldMessages:           graph.ReducerAppend,
		FieldAccumulatedQueries: graph.ReducerAppend,
		FieldCitedSummaries:     graph.ReducerAppend,
		FieldSourcesGathered:    graph.ReducerAppend,
		FieldAllSourcesGathered: graph.ReducerAppend,

		FieldPlan:                graph.ReducerReplace,
		FieldLoopCount:           graph.ReducerReplace,
		FieldUnansweredQuestions: graph.ReducerReplace,
		FieldNewQueriesEnglish:   graph.ReducerReplace,
		FieldNewQueriesDisplay:   graph.ReducerReplace,
		FieldQuality:             graph.ReducerReplace,
		FieldFacts:               graph.ReducerReplace,
		FieldRelevance:           graph.ReducerReplace,
		FieldOptimization:        graph.ReducerReplace,
		FieldIsSufficient:        graph.ReducerReplace,
		FieldKnowledgeGap:        graph.ReducerReplace,
	}
}

func stringsField(s graph.State, key string) []string {
	v, _ := s[key].([]string)
	return v
}

func intField(s graph.State, key string, def int) int {
	if v, ok := s[key].(int); ok {
		return v
	}
	return def
}

func stringField(s graph.State, key string) string {
	v, _ := s[key].(string)
	return v
}

func sourceRefsField(s graph.State, key string) []SourceRef {
	v, _ := s[key].([]SourceRef)
	return v
}
