package research

import (
	"context"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llm"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
	"github.com/hyperifyio/deepsearch/internal/session"
)

type fakeClient struct {
	response string
	err      error
	calls    int
}

func (f *fakeClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.response}}},
	}, nil
}

func newInvoker(primary llm.Client) *llmclient.Invoker {
	return &llmclient.Invoker{
		Registry:      session.NewRegistry(),
		PrimaryClient: primary,
		PrimaryModel:  "primary-model",
	}
}

func TestGenerateResearchPlan_SynthesizesRationaleWhenMissing(t *testing.T) {
	client := &fakeClient{response: `{"research_topic":"","sub_topics":["a","b"],"research_questions":["a: q1"],"rationale":""}`}
	inv := newInvoker(client)
	inv.Registry.Create("s1")

	node := GenerateResearchPlan(inv)
	out, err := node(context.Background(), graph.State{FieldQuery: "topic X"}, &graph.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plan := out[FieldPlan].(ResearchPlan)
	if plan.ResearchTopic != "topic X" {
		t.Fatalf("expected topic fallback to query, got %q", plan.ResearchTopic)
	}
	if plan.Rationale == "" {
		t.Fatalf("expected synthesized rationale")
	}
}

func TestGenerateQuery_TargetedModeRespectsCap(t *testing.T) {
	client := &fakeClient{response: `{"queries":["q1","q2","q3","q4","q5"],"display_queries":["q1","q2","q3","q4","q5"]}`}
	inv := newInvoker(client)
	inv.Registry.Create("s1")

	node := GenerateQuery(inv)
	state := graph.State{
		FieldInitialQueryCount:   5,
		FieldUnansweredQuestions: []string{"one unanswered question"},
	}
	out, err := node(context.Background(), state, &graph.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	queries := out[FieldNewQueriesEnglish].([]string)
	if len(queries) > 2 {
		t.Fatalf("expected at most 2 queries (min(2*1, 5)), got %d: %v", len(queries), queries)
	}
}

func TestReflection_IncrementsLoopCount(t *testing.T) {
	client := &fakeClient{response: `{"is_sufficient":false,"knowledge_gap":"gap","unanswered_questions":["q1"]}`}
	inv := newInvoker(client)
	inv.Registry.Create("s1")

	node := Reflection(inv)
	out, err := node(context.Background(), graph.State{FieldLoopCount: 2}, &graph.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[FieldLoopCount].(int) != 3 {
		t.Fatalf("expected loop count incremented to 3, got %v", out[FieldLoopCount])
	}
}

func TestEvaluateResearch_ForcesExitAtMaxLoops(t *testing.T) {
	router := EvaluateResearch("quality", "query")
	state := graph.State{FieldIsSufficient: false, FieldLoopCount: 1, FieldMaxLoops: 1}
	dispatches, err := router(context.Background(), state, &graph.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dispatches) != 1 || dispatches[0].Node != "quality" {
		t.Fatalf("expected forced exit to quality phase, got %+v", dispatches)
	}
}

func TestEvaluateResearch_LoopsBackWhenInsufficient(t *testing.T) {
	router := EvaluateResearch("quality", "query")
	state := graph.State{FieldIsSufficient: false, FieldLoopCount: 1, FieldMaxLoops: 5}
	dispatches, err := router(context.Background(), state, &graph.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dispatches) != 1 || dispatches[0].Node != "query" {
		t.Fatalf("expected loop back to query-gen, got %+v", dispatches)
	}
}

func TestVerifyFacts_ZipsFactsAndSourcesPairwise(t *testing.T) {
	client := &fakeClient{response: `{"score":0.8,"assessment":"ok","facts":["f1","f2"],"fact_sources":["s1","s2"],"unsupported_claims":["c1"],"claim_reasons":["r1"]}`}
	inv := newInvoker(client)
	inv.Registry.Create("s1")

	node := VerifyFacts(inv)
	out, err := node(context.Background(), graph.State{}, &graph.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	facts := out[FieldFacts].(FactSubState)
	if len(facts.VerifiedFacts) != 2 || facts.VerifiedFacts[0].Fact != "f1" || facts.VerifiedFacts[0].Source != "s1" {
		t.Fatalf("unexpected zipped facts: %+v", facts.VerifiedFacts)
	}
	if len(facts.UnsupportedClaims) != 1 || facts.UnsupportedClaims[0].Source != "r1" {
		t.Fatalf("unexpected zipped claims: %+v", facts.UnsupportedClaims)
	}
}

func TestOptimizeSummary_ComputesMeanConfidence(t *testing.T) {
	client := &fakeClient{response: `{"key_insights":["a","b","c","d","e"],"actionable_items":["x","y","z"],"confidence_level":"high"}`}
	inv := newInvoker(client)
	inv.Registry.Create("s1")

	node := OptimizeSummary(inv)
	state := graph.State{
		FieldQuality:   QualitySubState{Score: 0.9},
		FieldFacts:     FactSubState{Score: 0.6},
		FieldRelevance: RelevanceSubState{Score: 0.3},
	}
	out, err := node(context.Background(), state, &graph.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opt := out[FieldOptimization].(OptimizationResult)
	want := (0.9 + 0.6 + 0.3) / 3
	if diff := opt.FinalConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected mean confidence %.4f, got %.4f", want, opt.FinalConfidence)
	}
}

func TestFinalizeAnswer_PlacesReferencesAtDocumentEnd(t *testing.T) {
	client := &fakeClient{response: "Topic X has property Y [1], which conflicts with Z [2]."}
	inv := newInvoker(client)
	inv.Registry.Create("s1")

	node := FinalizeAnswer(inv)
	state := graph.State{
		FieldPlan: ResearchPlan{
			ResearchTopic: "topic X",
			SubTopics:     []string{"Alternatives & conflicting evidence"},
			Rationale:     "covers breadth",
		},
		FieldOptimization: OptimizationResult{
			KeyInsights:     []string{"insight one"},
			ActionableItems: []string{"do this"},
			ConfidenceLevel: "high",
			FinalConfidence: 0.8,
		},
		FieldVerificationReport: "## Quality & Verification Notes\n\nall good\n",
		FieldCitedSummaries:     []string{"Topic X has property Y [1]."},
		FieldAllSourcesGathered: []SourceRef{
			{Label: "Source One", ShortURL: "src/1-1", RealURL: "https://example.com/one"},
			{Label: "Source Two", ShortURL: "src/1-2", RealURL: "https://example.org/two"},
		},
		FieldReasoningModel: "",
	}
	out, err := node(context.Background(), state, &graph.Config{SessionID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	md := out[FieldMarkdownReport].(string)

	refsIdx := strings.Index(md, "## References")
	if refsIdx == -1 {
		t.Fatalf("expected a References section, got:\n%s", md)
	}
	for _, heading := range []string{"## Actionable Recommendations", "## Risks and Limitations", "## Detailed Analysis"} {
		if idx := strings.Index(md, heading); idx == -1 || idx > refsIdx {
			t.Fatalf("expected %q before References, got:\n%s", heading, md)
		}
	}
	if strings.Count(md, "## References") != 1 {
		t.Fatalf("expected exactly one References section, got:\n%s", md)
	}
}

func TestSplitOffReferences_SeparatesTrailingSection(t *testing.T) {
	text := "Some analysis.\n\n## References\n\n1. [Source](https://example.com)\n"
	body, refs := splitOffReferences(text)
	if strings.Contains(body, "## References") {
		t.Fatalf("expected body to exclude References heading, got: %q", body)
	}
	if !strings.HasPrefix(refs, "## References") {
		t.Fatalf("expected references to start with heading, got: %q", refs)
	}
}

func TestSplitOffReferences_NoReferencesSectionReturnsWholeText(t *testing.T) {
	body, refs := splitOffReferences("no references here")
	if body != "no references here" || refs != "" {
		t.Fatalf("expected unchanged body and empty references, got body=%q refs=%q", body, refs)
	}
}

func TestFormatCitations(t *testing.T) {
	if got := formatCitations(nil); got != "[]" {
		t.Fatalf("expected [] for nil, got %q", got)
	}
	if got := formatCitations([]int{1, 2, 3}); got != "[1,2,3]" {
		t.Fatalf("expected [1,2,3], got %q", got)
	}
}

func TestEnsureCounterEvidenceQuery_AppendsWhenMissing(t *testing.T) {
	queries, display := ensureCounterEvidenceQuery("topic X", []string{"topic X overview"}, []string{"topic X overview"}, 5)
	if len(queries) != 2 {
		t.Fatalf("expected a counter-evidence query appended, got %v", queries)
	}
	if len(display) != len(queries) {
		t.Fatalf("expected display to track queries, got %v vs %v", display, queries)
	}
}

func TestEnsureCounterEvidenceQuery_SkipsWhenAlreadyPresent(t *testing.T) {
	in := []string{"topic X limitations and criticism"}
	queries, display := ensureCounterEvidenceQuery("topic X", in, in, 5)
	if len(queries) != 1 {
		t.Fatalf("expected no query appended, got %v", queries)
	}
	if len(display) != 1 {
		t.Fatalf("expected no display appended, got %v", display)
	}
}

func TestEnsureCounterEvidenceQuery_SkipsWhenCapReached(t *testing.T) {
	in := []string{"a", "b"}
	queries, _ := ensureCounterEvidenceQuery("topic X", in, in, 2)
	if len(queries) != 2 {
		t.Fatalf("expected cap respected, got %v", queries)
	}
}

func TestEnsureAlternativesSubTopic_AppendsWhenMissing(t *testing.T) {
	got := ensureAlternativesSubTopic([]string{"a", "b"})
	if len(got) != 3 || got[2] != "Alternatives & conflicting evidence" {
		t.Fatalf("expected sub-topic appended, got %v", got)
	}
}

func TestEnsureAlternativesSubTopic_SkipsWhenPresent(t *testing.T) {
	got := ensureAlternativesSubTopic([]string{"a", "Alternatives & Conflicting Evidence"})
	if len(got) != 2 {
		t.Fatalf("expected no duplicate, got %v", got)
	}
}

func TestBuildGraph_CompilesAllNodes(t *testing.T) {
	inv := newInvoker(&fakeClient{})
	g, err := BuildGraph(inv, nil, nil, WebResearchConfig{})
	if err != nil {
		t.Fatalf("expected BuildGraph to compile, got error: %v", err)
	}
	if g == nil {
		t.Fatalf("expected non-nil graph")
	}
}
