package research

import (
	"context"
	"testing"

	"deepresearch/internal/llm"
)

type countingTextGateway struct {
	text  string
	err   error
	calls int
}

func (g *countingTextGateway) GenerateText(ctx context.Context, msgs []llm.Message) (string, llm.Usage, error) {
	g.calls++
	if g.err != nil {
		return "", llm.Usage{}, g.err
	}
	return g.text, llm.Usage{TotalTokens: 2}, nil
}

func (g *countingTextGateway) GenerateObject(ctx context.Context, msgs []llm.Message, schemaName string, schema map[string]any) ([]byte, llm.Usage, error) {
	return []byte(`{}`), llm.Usage{}, nil
}

func (g *countingTextGateway) StreamText(ctx context.Context, msgs []llm.Message) (<-chan llm.TextDelta, error) {
	ch := make(chan llm.TextDelta, 1)
	ch <- llm.TextDelta{Done: true}
	close(ch)
	return ch, nil
}

func (g *countingTextGateway) Model() string { return "counting-model" }

func TestQueryRewriter_Rewrite_NoOpWithoutFeedback(t *testing.T) {
	gw := &countingTextGateway{text: "should not be used"}
	r := &QueryRewriter{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "golang generics"}}, nil, 5)
	got, usage, err := r.Rewrite(context.Background(), sc, "golang generics")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if got != "golang generics" {
		t.Fatalf("Rewrite() = %q, want unchanged query", got)
	}
	if usage.TotalTokens != 0 {
		t.Fatalf("usage.TotalTokens = %d, want 0 (no LLM call)", usage.TotalTokens)
	}
	if gw.calls != 0 {
		t.Fatalf("GenerateText called %d times, want 0 when there is no feedback", gw.calls)
	}
}

func TestQueryRewriter_Rewrite_UsesFeedbackWhenPresent(t *testing.T) {
	gw := &countingTextGateway{text: "golang generics release date\nextra ignored line"}
	r := &QueryRewriter{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "golang generics"}}, nil, 5)
	feedback := "need the exact release date"
	sc.SetLastFeedback(&feedback)

	got, _, err := r.Rewrite(context.Background(), sc, "golang generics")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if got != "golang generics release date" {
		t.Fatalf("Rewrite() = %q, want first line only", got)
	}
	if gw.calls != 1 {
		t.Fatalf("GenerateText called %d times, want 1", gw.calls)
	}
}

func TestQueryRewriter_Rewrite_FallsBackToQueryOnGatewayError(t *testing.T) {
	gw := &countingTextGateway{err: errBoom}
	r := &QueryRewriter{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "golang generics"}}, nil, 5)
	feedback := "need more detail"
	sc.SetLastFeedback(&feedback)

	got, _, err := r.Rewrite(context.Background(), sc, "golang generics")
	if err != nil {
		t.Fatalf("Rewrite() error = %v, want nil (degrades to original query)", err)
	}
	if got != "golang generics" {
		t.Fatalf("Rewrite() = %q, want original query on gateway error", got)
	}
}
