package research

import (
	"context"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
	"github.com/hyperifyio/deepsearch/internal/webfetch"
	"github.com/hyperifyio/deepsearch/internal/websearch"
)

// Node names, shared between BuildGraph's wiring and the orchestrator's
// node-output-to-event mapping (spec §6.3).
const (
	NodeGenerateResearchPlan    = "generate_research_plan"
	NodeGenerateQuery           = "generate_query"
	NodeWebResearch             = "web_research"
	NodeReflection              = "reflection"
	NodeAssessContentQuality    = "assess_content_quality"
	NodeVerifyFacts             = "verify_facts"
	NodeAssessRelevance         = "assess_relevance"
	NodeOptimizeSummary         = "optimize_summary"
	NodeGenerateVerificationRpt = "generate_verification_report"
	NodeFinalizeAnswer          = "finalize_answer"
)

// BuildGraph wires the research nodes into the compiled directed graph
// described in spec §4.7: plan -> query-gen -> (fan-out) web_research ->
// reflection -> {loop back to query-gen | quality phase} -> facts ->
// relevance -> optimize -> verification report -> finalize -> end.
func BuildGraph(inv *llmclient.Invoker, searchClient *websearch.Client, fetcher *webfetch.Fetcher, wrCfg WebResearchConfig) (*graph.Graph, error) {
	b := graph.NewBuilder(Reducers())

	b.AddNode(NodeGenerateResearchPlan, GenerateResearchPlan(inv))
	b.AddNode(NodeGenerateQuery, GenerateQuery(inv))
	b.AddNode(NodeWebResearch, WebResearch(inv, searchClient, fetcher, wrCfg))
	b.AddNode(NodeReflection, Reflection(inv))
	b.AddNode(NodeAssessContentQuality, AssessContentQuality(inv))
	b.AddNode(NodeVerifyFacts, VerifyFacts(inv))
	b.AddNode(NodeAssessRelevance, AssessRelevance(inv))
	b.AddNode(NodeOptimizeSummary, OptimizeSummary(inv))
	b.AddNode(NodeGenerateVerificationRpt, GenerateVerificationReport())
	b.AddNode(NodeFinalizeAnswer, FinalizeAnswer(inv))

	b.SetStart(NodeGenerateResearchPlan)
	b.AddSequentialEdge(NodeGenerateResearchPlan, NodeGenerateQuery)
	b.AddConditionalEdge(NodeGenerateQuery, dispatchWebResearch)
	b.AddSequentialEdge(NodeWebResearch, NodeReflection)
	b.AddConditionalEdge(NodeReflection, EvaluateResearch(NodeAssessContentQuality, NodeGenerateQuery))
	b.AddSequentialEdge(NodeAssessContentQuality, NodeVerifyFacts)
	b.AddSequentialEdge(NodeVerifyFacts, NodeAssessRelevance)
	b.AddSequentialEdge(NodeAssessRelevance, NodeOptimizeSummary)
	b.AddSequentialEdge(NodeOptimizeSummary, NodeGenerateVerificationRpt)
	b.AddSequentialEdge(NodeGenerateVerificationRpt, NodeFinalizeAnswer)
	b.AddTerminalEdge(NodeFinalizeAnswer)

	return b.Compile()
}

// dispatchWebResearch is the conditional edge leaving generate_query: one
// Dispatch(web_research, ...) per newly generated query, each carrying its
// own search-id so short-url allocation stays scoped to that invocation
// (spec §4.4.1).
func dispatchWebResearch(ctx context.Context, s graph.State, cfg *graph.Config) ([]graph.Dispatch, error) {
	queries := stringsField(s, FieldNewQueriesEnglish)
	display := stringsField(s, FieldNewQueriesDisplay)

	dispatches := make([]graph.Dispatch, 0, len(queries))
	for i, q := range queries {
		d := q
		if i < len(display) {
			d = display[i]
		}
		dispatches = append(dispatches, graph.Dispatch{
			Node: NodeWebResearch,
			State: graph.State{
				"web_research_query":         q,
				"web_research_display_query": d,
				"web_research_search_id":     NextSearchID(),
			},
		})
	}
	return dispatches, nil
}

// InitialState builds the OverallState graph.State for a fresh run from the
// request parameters (spec §4.8 step 3).
func InitialState(query string, initialQueryCount, maxLoops int, reasoningModel, reportFormat string) graph.State {
	return graph.State{
		FieldQuery:             query,
		FieldInitialQueryCount: initialQueryCount,
		FieldMaxLoops:          maxLoops,
		FieldLoopCount:         0,
		FieldReasoningModel:    reasoningModel,
		FieldReportFormat:      reportFormat,
	}
}
