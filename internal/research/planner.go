package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deepresearch/internal/llm"
)

// ActionType discriminates the Planner's decision.
type ActionType string

const (
	ActionContinue ActionType = "continue"
	ActionAnswer   ActionType = "answer"
)

// Action is the Planner's structured decision for one loop step.
type Action struct {
	Title     string     `json:"title"`
	Reasoning string     `json:"reasoning"`
	Type      ActionType `json:"type"`
	Query     string     `json:"query,omitempty"`
	Feedback  string     `json:"feedback,omitempty"`
}

var plannerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":     map[string]any{"type": "string", "description": "short UI label"},
		"reasoning": map[string]any{"type": "string"},
		"type":      map[string]any{"type": "string", "enum": []any{"continue", "answer"}},
		"query":     map[string]any{"type": "string"},
		"feedback":  map[string]any{"type": "string"},
	},
	"required": []any{"title", "reasoning", "type"},
}

// Planner decides whether the loop should continue gathering evidence or
// answer, via a schema-constrained LLM call.
type Planner struct {
	Gateway llm.Gateway
}

// Plan produces the next Action for the given SystemContext.
func (p *Planner) Plan(ctx context.Context, sc *SystemContext) (Action, llm.Usage, error) {
	prompt := fmt.Sprintf(`Current date: %s
%s

Search history so far:
%s

Last feedback: %s

Conversation so far:
%s

Initial question: %s
Latest user message: %s

Decide whether to continue researching or answer now. Prefer continue until the
evidence plausibly answers the question. If recent searches returned zero
results, stop narrowing: broaden the query or answer with what you have.
When you return continue, always include a feedback string describing what
is still missing.`,
		time.Now().UTC().Format("2006-01-02"),
		sc.UserLocationContext(),
		orNone(sc.SearchHistoryText()),
		orNone(derefString(sc.LastFeedback())),
		sc.ConversationHistory(),
		sc.InitialQuestion(),
		sc.LatestUserMessage(),
	)

	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are the planning stage of a research agent. Respond only via the provided schema."},
		{Role: llm.RoleUser, Content: prompt},
	}

	raw, usage, err := p.Gateway.GenerateObject(ctx, msgs, "planner_action", plannerSchema)
	if err != nil {
		return Action{}, usage, fmt.Errorf("planner: generate object: %w", err)
	}

	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		return Action{}, usage, fmt.Errorf("planner: decode action: %w", err)
	}
	if action.Type == ActionContinue && action.Query == "" {
		return Action{}, usage, fmt.Errorf("planner: continue action missing query")
	}
	return action, usage, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none yet)"
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
