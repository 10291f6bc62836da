package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
)

// GenerateResearchPlan builds the generate_research_plan node (spec §4.7.1):
// it asks for 3-5 sub-topics with 3-4 research questions each, stores
// questions flat with their parent sub-topic as a prefix, and synthesizes a
// deterministic rationale if the model omits one.
func GenerateResearchPlan(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		query := stringField(s, FieldQuery)
		system := "You are a meticulous research planner. Respond with strict JSON only, no narration. " +
			"Schema: {\"research_topic\": string, \"sub_topics\": string[3..5], " +
			"\"research_questions\": string[], \"rationale\": string}. " +
			"Produce 3 to 5 sub-topics, each with 3 to 4 specific research questions. " +
			"Prefix every research question with its parent sub-topic followed by ': ' so the " +
			"question can be traced back to its sub-topic later."
		user := "User query: " + query

		plan, err := callJSON[ResearchPlan](ctx, inv, cfg.SessionID, "generate_research_plan", system, user)
		if err != nil {
			return nil, err
		}
		plan.ResearchTopic = firstNonEmpty(strings.TrimSpace(plan.ResearchTopic), query)
		plan.SubTopics = ensureAlternativesSubTopic(plan.SubTopics)
		if strings.TrimSpace(plan.Rationale) == "" {
			plan.Rationale = fmt.Sprintf(
				"Plan covers %q across %d sub-topics to ensure breadth before synthesis.",
				plan.ResearchTopic, len(plan.SubTopics),
			)
		}
		return graph.State{FieldPlan: plan}, nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ensureAlternativesSubTopic appends an "Alternatives & conflicting evidence"
// sub-topic when the model's own plan doesn't already cover one, mirroring
// the final report's fixed section of the same name so the reflection loop
// has a standing sub-topic to drive queries toward it.
func ensureAlternativesSubTopic(subTopics []string) []string {
	for _, t := range subTopics {
		if strings.EqualFold(strings.TrimSpace(t), "alternatives & conflicting evidence") {
			return subTopics
		}
	}
	return append(subTopics, "Alternatives & conflicting evidence")
}
