package research

import (
	"context"
	"testing"

	"deepresearch/internal/llm"
)

func TestClarifier_Check_NoClarificationNeeded(t *testing.T) {
	gw := &fixedObjectGateway{object: `{"needs_clarification": false}`}
	c := &Clarifier{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "what is the population of Tokyo"}}, nil, 5)
	verdict, _, err := c.Check(context.Background(), sc)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if verdict.NeedsClarification {
		t.Fatalf("NeedsClarification = true, want false")
	}
}

func TestClarifier_Check_NeedsClarificationWithReason(t *testing.T) {
	gw := &fixedObjectGateway{object: `{"needs_clarification": true, "reason": "which product line?"}`}
	c := &Clarifier{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "tell me the pricing"}}, nil, 5)
	verdict, _, err := c.Check(context.Background(), sc)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !verdict.NeedsClarification {
		t.Fatalf("NeedsClarification = false, want true")
	}
	if verdict.Reason == "" {
		t.Fatalf("Reason = empty, want populated")
	}
}

func TestClarifier_Check_PropagatesGatewayError(t *testing.T) {
	gw := &fixedObjectGateway{err: errBoom}
	c := &Clarifier{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "hello"}}, nil, 5)
	if _, _, err := c.Check(context.Background(), sc); err == nil {
		t.Fatalf("Check() error = nil, want non-nil")
	}
}
