package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
	"github.com/hyperifyio/deepsearch/internal/validate"
)

func summariesText(s graph.State) string {
	return strings.Join(stringsField(s, FieldCitedSummaries), "\n\n")
}

// AssessContentQuality builds the assess_content_quality node (spec §4.7.6).
// Alongside the model's own judgment, it runs a deterministic citation-range
// check over the accumulated summaries (validate.ValidateCitations) and
// records any out-of-range or unreferenced citations as an additional gap,
// the same non-fatal annotate-don't-fail pattern the final report assembly
// uses for its own Markdown QA pass.
func AssessContentQuality(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		system := "You are a content quality reviewer. Respond with strict JSON only: " +
			"{\"score\": number in [0,1], \"assessment\": string, \"gaps\": string[]}. " +
			"Evaluate the depth, clarity, and completeness of the summaries below."
		text := summariesText(s)
		user := "Summaries:\n" + text

		result, err := callJSON[QualitySubState](ctx, inv, cfg.SessionID, "assess_content_quality", system, user)
		if err != nil {
			return nil, err
		}

		numSources := len(sourceRefsField(s, FieldAllSourcesGathered))
		citations := validate.ValidateCitations(text, numSources)
		if len(citations.OutOfRange) > 0 {
			result.Gaps = append(result.Gaps, fmt.Sprintf("out-of-range citations: %v", citations.OutOfRange))
		}
		if citations.MissingReferences {
			result.Gaps = append(result.Gaps, "citations present but no sources gathered yet")
		}

		return graph.State{FieldQuality: result}, nil
	}
}

// VerifyFacts builds the verify_facts node (spec §4.7.6): the model returns
// two parallel lists (facts and their sources; claims and their reasons)
// which are zipped into FactPair entries.
func VerifyFacts(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		system := "You are a fact-verification reviewer. Respond with strict JSON only: " +
			"{\"score\": number in [0,1], \"assessment\": string, " +
			"\"facts\": string[], \"fact_sources\": string[], " +
			"\"unsupported_claims\": string[], \"claim_reasons\": string[]}. " +
			"\"facts\" and \"fact_sources\" must be the same length and zip pairwise; likewise for " +
			"\"unsupported_claims\" and \"claim_reasons\"."
		user := "Summaries:\n" + summariesText(s)

		type wireResult struct {
			Score             float64  `json:"score"`
			Assessment        string   `json:"assessment"`
			Facts             []string `json:"facts"`
			FactSources       []string `json:"fact_sources"`
			UnsupportedClaims []string `json:"unsupported_claims"`
			ClaimReasons      []string `json:"claim_reasons"`
		}
		result, err := callJSON[wireResult](ctx, inv, cfg.SessionID, "verify_facts", system, user)
		if err != nil {
			return nil, err
		}

		out := FactSubState{Score: result.Score, Assessment: result.Assessment}
		out.VerifiedFacts = zipPairs(result.Facts, result.FactSources)
		out.UnsupportedClaims = zipPairs(result.UnsupportedClaims, result.ClaimReasons)

		return graph.State{FieldFacts: out}, nil
	}
}

func zipPairs(a, b []string) []FactPair {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]FactPair, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, FactPair{Fact: a[i], Source: b[i]})
	}
	return out
}

// AssessRelevance builds the assess_relevance node (spec §4.7.6). A
// deterministic keyword-overlap check (validate.KeywordOverlap) against the
// plan's research topic backs the model's own judgment: when the summaries
// barely use the topic's own vocabulary, the missing terms are recorded as
// off-topic signals alongside whatever the model itself flags.
func AssessRelevance(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		plan, _ := s[FieldPlan].(ResearchPlan)
		text := summariesText(s)
		system := "You are a relevance reviewer. Respond with strict JSON only: " +
			"{\"score\": number in [0,1], \"assessment\": string, \"off_topics\": string[]}. " +
			"Evaluate how well the summaries address the original research topic, flagging any " +
			"off-topic digressions."
		user := "Research topic: " + plan.ResearchTopic + "\n\nSummaries:\n" + text

		result, err := callJSON[RelevanceSubState](ctx, inv, cfg.SessionID, "assess_relevance", system, user)
		if err != nil {
			return nil, err
		}

		overlap, missing := validate.KeywordOverlap(text, plan.ResearchTopic)
		if overlap < 0.5 && len(missing) > 0 {
			result.OffTopics = append(result.OffTopics, fmt.Sprintf(
				"low topic-keyword coverage (%.0f%%): missing %v", overlap*100, missing))
		}

		return graph.State{FieldRelevance: result}, nil
	}
}
