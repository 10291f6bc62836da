package research

import (
	"context"
	"strings"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
)

type reflectionResult struct {
	IsSufficient        bool     `json:"is_sufficient"`
	KnowledgeGap        string   `json:"knowledge_gap"`
	UnansweredQuestions []string `json:"unanswered_questions"`
}

// Reflection builds the reflection node (spec §4.7.4). It increments the
// loop count first, then asks the model to walk the plan's research
// questions and report which remain inadequately answered, reproducing
// them verbatim so query-gen's targeted mode can match them back.
func Reflection(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		loopCount := intField(s, FieldLoopCount, 0) + 1
		plan, _ := s[FieldPlan].(ResearchPlan)
		summaries := stringsField(s, FieldCitedSummaries)

		system := "You are a research completeness reviewer. Respond with strict JSON only: " +
			"{\"is_sufficient\": bool, \"knowledge_gap\": string, \"unanswered_questions\": string[]}. " +
			"Walk the research-questions list below and mark any not yet adequately answered by the " +
			"summaries, reproducing those questions VERBATIM in unanswered_questions. " +
			"At the first research loop, lean toward insufficient unless the question is trivial."
		user := "Research questions:\n"
		for _, q := range plan.ResearchQuestions {
			user += "- " + q + "\n"
		}
		user += "\nAccumulated summaries:\n" + strings.Join(summaries, "\n\n")

		result, err := callJSON[reflectionResult](ctx, inv, cfg.SessionID, "reflection", system, user)
		if err != nil {
			return nil, err
		}

		return graph.State{
			FieldLoopCount:           loopCount,
			FieldIsSufficient:        result.IsSufficient,
			FieldKnowledgeGap:        result.KnowledgeGap,
			FieldUnansweredQuestions: sanitizeList(result.UnansweredQuestions, 0),
		}, nil
	}
}

// EvaluateResearch is the evaluate_research router (spec §4.7.5, not a
// node): route to the quality phase once sufficient or once the loop count
// reaches maxLoops, otherwise loop back to generate_query.
func EvaluateResearch(afterSufficient, afterLoopBack string) graph.RouterFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) ([]graph.Dispatch, error) {
		isSufficient, _ := s[FieldIsSufficient].(bool)
		loopCount := intField(s, FieldLoopCount, 0)
		maxLoops := intField(s, FieldMaxLoops, 5)

		if isSufficient || loopCount >= maxLoops {
			return []graph.Dispatch{{Node: afterSufficient}}, nil
		}
		return []graph.Dispatch{{Node: afterLoopBack}}, nil
	}
}
