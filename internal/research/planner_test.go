package research

import (
	"context"
	"testing"

	"deepresearch/internal/llm"
)

func TestPlanner_Plan_ContinueAction(t *testing.T) {
	gw := &fixedObjectGateway{object: `{"title":"search","reasoning":"need more evidence","type":"continue","query":"go 1.18 generics release date","feedback":"missing exact date"}`}
	p := &Planner{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "when did go generics ship"}}, nil, 5)
	action, _, err := p.Plan(context.Background(), sc)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if action.Type != ActionContinue {
		t.Fatalf("Type = %q, want %q", action.Type, ActionContinue)
	}
	if action.Query == "" {
		t.Fatalf("Query = empty, want populated for continue action")
	}
	if action.Feedback == "" {
		t.Fatalf("Feedback = empty, want populated for continue action")
	}
}

func TestPlanner_Plan_AnswerAction(t *testing.T) {
	gw := &fixedObjectGateway{object: `{"title":"answer","reasoning":"evidence sufficient","type":"answer"}`}
	p := &Planner{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "when did go generics ship"}}, nil, 5)
	action, _, err := p.Plan(context.Background(), sc)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if action.Type != ActionAnswer {
		t.Fatalf("Type = %q, want %q", action.Type, ActionAnswer)
	}
}

func TestPlanner_Plan_RejectsContinueWithoutQuery(t *testing.T) {
	gw := &fixedObjectGateway{object: `{"title":"search","reasoning":"need more","type":"continue","feedback":"missing query"}`}
	p := &Planner{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "anything"}}, nil, 5)
	if _, _, err := p.Plan(context.Background(), sc); err == nil {
		t.Fatalf("Plan() error = nil, want error for continue action missing query")
	}
}

func TestPlanner_Plan_PropagatesGatewayError(t *testing.T) {
	gw := &fixedObjectGateway{err: errBoom}
	p := &Planner{Gateway: gw}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "anything"}}, nil, 5)
	if _, _, err := p.Plan(context.Background(), sc); err == nil {
		t.Fatalf("Plan() error = nil, want non-nil")
	}
}
