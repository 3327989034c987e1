package research

import (
	"context"
	"strings"

	"deepresearch/internal/llm"
)

// QueryRewriter refines the Planner's proposed query using the most recent
// feedback and prior search attempts, so repeated loop iterations don't
// keep issuing the same search.
type QueryRewriter struct {
	Gateway llm.Gateway
}

// Rewrite returns the input query unchanged when there is no feedback to
// act on (no LLM call is made); otherwise it produces a single-line
// optimized query.
func (r *QueryRewriter) Rewrite(ctx context.Context, sc *SystemContext, query string) (string, llm.Usage, error) {
	feedback := sc.LastFeedback()
	if feedback == nil || strings.TrimSpace(*feedback) == "" {
		return query, llm.Usage{}, nil
	}

	prompt := `Rewrite the proposed search query using the latest feedback and the
conversation so far. Produce a single line, no explanation. Do not repeat a
query already present in the search history. Broaden the query if previous
narrow queries returned zero results. Include explicit date tokens when the
user is asking for "recent" or "latest" information.

Proposed query: ` + query + `
Latest feedback: ` + *feedback + `
Conversation:
` + sc.ConversationHistory() + `
Prior search history:
` + sc.SearchHistoryText()

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You rewrite search queries for a research agent. Respond with only the rewritten query, one line."},
		{Role: llm.RoleUser, Content: prompt},
	}

	text, usage, err := r.Gateway.GenerateText(ctx, msgs)
	if err != nil {
		return query, usage, nil
	}
	text = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if text == "" {
		return query, usage, nil
	}
	return text, usage, nil
}
