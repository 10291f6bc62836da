package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperifyio/deepsearch/internal/graph"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
)

type queryGenResult struct {
	Queries        []string `json:"queries"`
	DisplayQueries []string `json:"display_queries"`
}

// GenerateQuery builds the generate_query node (spec §4.7.2). In initial
// mode (no unanswered questions yet) it asks for up to initialQueryCount
// diverse queries covering the whole plan; in targeted mode it asks for 1-2
// queries per unanswered question, capped at initialQueryCount, and forbids
// queries outside that literal list.
func GenerateQuery(inv *llmclient.Invoker) graph.NodeFunc {
	return func(ctx context.Context, s graph.State, cfg *graph.Config) (graph.State, error) {
		plan, _ := s[FieldPlan].(ResearchPlan)
		unanswered := stringsField(s, FieldUnansweredQuestions)
		initialCount := intField(s, FieldInitialQueryCount, 3)

		var system, user string
		queryCap := initialCount
		if len(unanswered) == 0 {
			system = "You are a search query strategist. Respond with strict JSON only: " +
				"{\"queries\": string[], \"display_queries\": string[]}. " +
				"\"queries\" are concise, high-recall search-engine queries in English. " +
				"\"display_queries\" are the same queries, worded for display to an end user " +
				"(translated/rephrased if appropriate); if omitted, queries are reused verbatim. " +
				fmt.Sprintf("Produce at most %d queries; prefer a single query unless the topic genuinely demands more.", initialCount)
			user = fmt.Sprintf("Research topic: %s\nSub-topics: %s\n", plan.ResearchTopic, strings.Join(plan.SubTopics, "; "))
		} else {
			if 2*len(unanswered) < initialCount {
				queryCap = 2 * len(unanswered)
			}
			system = "You are a search query strategist operating in targeted follow-up mode. " +
				"Respond with strict JSON only: {\"queries\": string[], \"display_queries\": string[]}. " +
				"Generate 1 to 2 queries per unanswered question below, and NO queries outside that list. " +
				fmt.Sprintf("Produce at most %d queries in total.", queryCap)
			user = "Unanswered questions (address only these):\n"
			for _, q := range unanswered {
				user += "- " + q + "\n"
			}
		}

		result, err := callJSON[queryGenResult](ctx, inv, cfg.SessionID, "generate_query", system, user)
		if err != nil {
			return nil, err
		}

		queries := sanitizeList(result.Queries, queryCap)
		display := sanitizeList(result.DisplayQueries, queryCap)
		if len(unanswered) == 0 {
			queries, display = ensureCounterEvidenceQuery(plan.ResearchTopic, queries, display, queryCap)
		}
		if len(display) != len(queries) {
			display = append([]string{}, queries...)
		}
		if len(queries) == 0 {
			return nil, fmt.Errorf("generate_query: model returned no queries")
		}

		return graph.State{
			FieldNewQueriesEnglish: queries,
			FieldNewQueriesDisplay: display,
		}, nil
	}
}

var counterEvidencePhrases = []string{"limitation", "contrary", "alternative", "criticism", "counter-evidence"}

// ensureCounterEvidenceQuery appends a single counter-evidence/alternatives
// query to the initial-mode query set when none of the model's own queries
// already seek one, so every research run breadth-tests the topic instead of
// only confirming it. Skipped once the query cap is already reached.
func ensureCounterEvidenceQuery(topic string, queries, display []string, cap int) ([]string, []string) {
	for _, q := range queries {
		low := strings.ToLower(q)
		for _, phrase := range counterEvidencePhrases {
			if strings.Contains(low, phrase) {
				return queries, display
			}
		}
	}
	if cap > 0 && len(queries) >= cap {
		return queries, display
	}
	extra := strings.TrimSpace("limitations and contrary findings about " + topic)
	return append(queries, extra), append(display, extra)
}

func sanitizeList(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
