package research

import (
	"context"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
)

type optimizeWireResult struct {
	KeyInsights     []string `json:"key_insights"`
	ActionableItems []string `json:"actionable_items"`
	ConfidenceLevel string   `json:"confidence_level"`
}

// OptimizeSummary builds the optimize_summary node (spec §4.7.7). It
// consumes the three assessments plus the original summaries and produces
// 5-10 key insights, 3-5 actionable items, and a confidence level. The
// final confidence score is computed as the spec's verbatim formula: the
// mean of the quality, fact, and relevance scores (§9 preserves the
// formula's unverified statistical soundness).
func OptimizeSummary(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		quality, _ := s[FieldQuality].(QualitySubState)
		facts, _ := s[FieldFacts].(FactSubState)
		relevance, _ := s[FieldRelevance].(RelevanceSubState)

		system := "You are a synthesis editor. Respond with strict JSON only: " +
			"{\"key_insights\": string[5..10], \"actionable_items\": string[3..5], " +
			"\"confidence_level\": \"high\"|\"medium\"|\"low\"}. " +
			"Distill the summaries and assessments below into key insights and actionable items."
		user := "Summaries:\n" + summariesText(s) +
			"\n\nQuality assessment: " + quality.Assessment +
			"\nFact assessment: " + facts.Assessment +
			"\nRelevance assessment: " + relevance.Assessment

		result, err := callJSON[optimizeWireResult](ctx, inv, cfg.SessionID, "optimize_summary", system, user)
		if err != nil {
			return nil, err
		}

		final := (quality.Score + facts.Score + relevance.Score) / 3

		out := OptimizationResult{
			KeyInsights:     result.KeyInsights,
			ActionableItems: result.ActionableItems,
			ConfidenceLevel: result.ConfidenceLevel,
			FinalConfidence: final,
		}
		return graph.State{FieldOptimization: out}, nil
	}
}
