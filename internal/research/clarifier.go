package research

import (
	"context"
	"encoding/json"
	"fmt"

	"deepresearch/internal/llm"
)

// ClarifierVerdict reports whether the request is missing information
// needed to research it.
type ClarifierVerdict struct {
	NeedsClarification bool   `json:"needs_clarification"`
	Reason             string `json:"reason,omitempty"`
}

var clarifierSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"needs_clarification": map[string]any{"type": "boolean"},
		"reason":              map[string]any{"type": "string"},
	},
	"required": []any{"needs_clarification"},
}

// Clarifier decides whether the loop needs to ask the user a clarifying
// question before researching.
type Clarifier struct {
	Gateway llm.Gateway
}

// Check classifies whether the conversation needs clarification.
func (c *Clarifier) Check(ctx context.Context, sc *SystemContext) (ClarifierVerdict, llm.Usage, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You decide whether a research request is missing information needed to answer it well. Only ask for clarification when the request is genuinely ambiguous or underspecified. Respond only via the provided schema."},
		{Role: llm.RoleUser, Content: "Conversation so far:\n" + sc.ConversationHistory()},
	}

	raw, usage, err := c.Gateway.GenerateObject(ctx, msgs, "clarifier_verdict", clarifierSchema)
	if err != nil {
		return ClarifierVerdict{}, usage, fmt.Errorf("clarifier: generate object: %w", err)
	}

	var verdict ClarifierVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return ClarifierVerdict{}, usage, fmt.Errorf("clarifier: decode verdict: %w", err)
	}
	return verdict, usage, nil
}
