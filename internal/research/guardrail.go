package research

import (
	"context"
	"encoding/json"
	"fmt"

	"deepresearch/internal/llm"
)

// GuardrailVerdict classifies whether a request should proceed.
type GuardrailVerdict struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

var guardrailSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"allow":  map[string]any{"type": "boolean"},
		"reason": map[string]any{"type": "string"},
	},
	"required": []any{"allow"},
}

// Guardrail classifies the latest user message as allow/refuse before any
// research begins.
type Guardrail struct {
	Gateway llm.Gateway
}

// Check classifies the latest user message.
func (g *Guardrail) Check(ctx context.Context, sc *SystemContext) (GuardrailVerdict, llm.Usage, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a safety guardrail for a research agent. Classify whether the latest user message should be allowed to proceed. Refuse only clearly disallowed requests (e.g. requests for illegal harm). Respond only via the provided schema."},
		{Role: llm.RoleUser, Content: sc.LatestUserMessage()},
	}

	raw, usage, err := g.Gateway.GenerateObject(ctx, msgs, "guardrail_verdict", guardrailSchema)
	if err != nil {
		return GuardrailVerdict{}, usage, fmt.Errorf("guardrail: generate object: %w", err)
	}

	var verdict GuardrailVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return GuardrailVerdict{}, usage, fmt.Errorf("guardrail: decode verdict: %w", err)
	}
	return verdict, usage, nil
}
