package orchestrator

import (
	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/research"
)

// milestones maps a node name to its logical progress milestone (spec
// §6.3: "eight logical milestones, plan=1 ... finalize=8"). The three
// report-assembly nodes (optimize_summary, generate_verification_report,
// finalize_answer) share the final milestone since the client only cares
// that the run has entered its closing phase.
var milestones = map[string]int{
	research.NodeGenerateResearchPlan:    1,
	research.NodeGenerateQuery:           2,
	research.NodeWebResearch:             3,
	research.NodeReflection:              4,
	research.NodeAssessContentQuality:    5,
	research.NodeVerifyFacts:             6,
	research.NodeAssessRelevance:         7,
	research.NodeOptimizeSummary:         8,
	research.NodeGenerateVerificationRpt: 8,
	research.NodeFinalizeAnswer:          8,
}

const totalMilestones = 8

// sourceBrief is the {title,url} shape the web_result event payload names
// in spec §6.3 — narrower than the full SourceRef the rest of the system
// carries.
type sourceBrief struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// emitFunc sends one SSE event; bound to a live sse.Writer by the caller.
type emitFunc func(eventType, message string, payload interface{})

// nodeEventState is the subset of mutable per-run bookkeeping the event
// mapper needs across calls (whether the web-search wave banner has fired
// yet).
type nodeEventState struct {
	webSearchingEmitted bool
}

// mapNodeEvent translates one graph.Event into zero or more domain SSE
// events per the table in spec §6.3, consulting mirror (the orchestrator's
// accumulated-state mirror) for fields the node's own delta doesn't carry
// (e.g. the research plan feeding generate_query's "rationale").
func mapNodeEvent(evt graph.Event, mirror graph.State, st *nodeEventState, emit emitFunc) {
	milestone := milestones[evt.Node]
	switch evt.Node {
	case research.NodeGenerateResearchPlan:
		plan, _ := evt.Delta[research.FieldPlan].(research.ResearchPlan)
		emit("research_plan", "", map[string]interface{}{
			"research_topic":     plan.ResearchTopic,
			"sub_topics":         plan.SubTopics,
			"research_questions": plan.ResearchQuestions,
			"rationale":          plan.Rationale,
		})

	case research.NodeGenerateQuery:
		queries, _ := evt.Delta[research.FieldNewQueriesDisplay].([]string)
		plan, _ := mirror[research.FieldPlan].(research.ResearchPlan)
		emit("query_generated", "", map[string]interface{}{
			"queries":   queries,
			"count":     len(queries),
			"rationale": plan.Rationale,
		})
		if !st.webSearchingEmitted {
			st.webSearchingEmitted = true
			emit("web_searching", "dispatching web research for generated queries", nil)
		}

	case research.NodeWebResearch:
		sources, _ := evt.Delta[research.FieldSourcesGathered].([]research.SourceRef)
		briefs := make([]sourceBrief, 0, len(sources))
		for _, s := range sources {
			briefs = append(briefs, sourceBrief{Title: s.Label, URL: s.RealURL})
		}
		emit("web_result", "", map[string]interface{}{
			"sources": briefs,
			"count":   len(briefs),
		})

	case research.NodeReflection:
		emit("reflection", "", map[string]interface{}{
			"loop_count":           evt.Delta[research.FieldLoopCount],
			"is_sufficient":        evt.Delta[research.FieldIsSufficient],
			"knowledge_gap":        evt.Delta[research.FieldKnowledgeGap],
			"unanswered_questions": evt.Delta[research.FieldUnansweredQuestions],
		})

	case research.NodeAssessContentQuality:
		emit("quality_assessment", "", evt.Delta[research.FieldQuality])

	case research.NodeVerifyFacts:
		emit("fact_verification", "", evt.Delta[research.FieldFacts])

	case research.NodeAssessRelevance:
		emit("relevance_assessment", "", evt.Delta[research.FieldRelevance])

	case research.NodeOptimizeSummary:
		opt, _ := evt.Delta[research.FieldOptimization].(research.OptimizationResult)
		emit("optimization", "", map[string]interface{}{
			"key_insights":     opt.KeyInsights,
			"actionable_items": opt.ActionableItems,
			"confidence_level": opt.ConfidenceLevel,
		})
	}

	if milestone > 0 {
		emit("progress", "", map[string]interface{}{
			"current_step":    evt.Node,
			"total_steps":     totalMilestones,
			"completed_steps": milestone,
			"percentage":      float64(milestone) / float64(totalMilestones) * 100,
		})
	}
}
