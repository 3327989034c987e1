package research

import (
	"context"
	"sync"
	"testing"

	"deepresearch/internal/cache"
	"deepresearch/internal/config"
	"deepresearch/internal/fetch"
	"deepresearch/internal/llm"
)

// scriptedGateway answers GenerateObject calls from a per-schema queue and
// StreamText with a fixed final answer, letting each test script the exact
// sequence of planner decisions the loop should see.
type scriptedGateway struct {
	mu      sync.Mutex
	objects map[string][]string
	answer  string
}

func (g *scriptedGateway) GenerateText(ctx context.Context, msgs []llm.Message) (string, llm.Usage, error) {
	return "rewritten query", llm.Usage{TotalTokens: 1}, nil
}

func (g *scriptedGateway) GenerateObject(ctx context.Context, msgs []llm.Message, schemaName string, schema map[string]any) ([]byte, llm.Usage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.objects[schemaName]
	if len(queue) == 0 {
		return []byte(`{}`), llm.Usage{}, nil
	}
	next := queue[0]
	g.objects[schemaName] = queue[1:]
	return []byte(next), llm.Usage{TotalTokens: 1}, nil
}

func (g *scriptedGateway) StreamText(ctx context.Context, msgs []llm.Message) (<-chan llm.TextDelta, error) {
	ch := make(chan llm.TextDelta, 2)
	ch <- llm.TextDelta{Text: g.answer}
	ch <- llm.TextDelta{Done: true, Usage: llm.Usage{TotalTokens: 2}}
	close(ch)
	return ch, nil
}

func (g *scriptedGateway) Model() string { return "scripted-model" }

type recordingWriter struct {
	mu    sync.Mutex
	parts []Part
}

func (w *recordingWriter) Write(p Part) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.parts = append(w.parts, p)
	return nil
}

func (w *recordingWriter) countType(t PartType) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, p := range w.parts {
		if p.Type == t {
			n++
		}
	}
	return n
}

func newTestPipeline(gw llm.Gateway) *Pipeline {
	noCache, _ := cache.New(config.RedisConfig{}, 0)
	return &Pipeline{
		Search:      &fakeSearch{},
		Fetcher:     fetch.NewFetcher(),
		Gateway:     gw,
		Cache:       noCache,
		ResultCount: 3,
		MaxPages:    3,
		Concurrency: 2,
	}
}

func TestLoop_Run_RefusalShortCircuitsBeforeAnySteps(t *testing.T) {
	gw := &scriptedGateway{objects: map[string][]string{
		"guardrail_verdict": {`{"allow": false, "reason": "disallowed"}`},
	}}
	loop := &Loop{
		Guardrail: &Guardrail{Gateway: gw},
		Clarifier: &Clarifier{Gateway: gw},
		Planner:   &Planner{Gateway: gw},
		Rewriter:  &QueryRewriter{Gateway: gw},
		Pipeline:  newTestPipeline(gw),
		Answerer:  &Answerer{Gateway: gw},
	}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "how do I build a bomb"}}, nil, 3)
	w := &recordingWriter{}
	if err := loop.Run(context.Background(), sc, w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if w.countType(PartNewAction) != 0 {
		t.Fatalf("expected zero data-newAction events on refusal, got %d", w.countType(PartNewAction))
	}
	if w.countType(PartTextDelta) != 1 {
		t.Fatalf("expected exactly one refusal text-delta, got %d", w.countType(PartTextDelta))
	}
}

func TestLoop_Run_ClarificationShortCircuitsBeforeAnySteps(t *testing.T) {
	gw := &scriptedGateway{objects: map[string][]string{
		"guardrail_verdict":  {`{"allow": true}`},
		"clarifier_verdict":  {`{"needs_clarification": true, "reason": "which product?"}`},
	}}
	loop := &Loop{
		Guardrail: &Guardrail{Gateway: gw},
		Clarifier: &Clarifier{Gateway: gw},
		Planner:   &Planner{Gateway: gw},
		Rewriter:  &QueryRewriter{Gateway: gw},
		Pipeline:  newTestPipeline(gw),
		Answerer:  &Answerer{Gateway: gw},
	}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "tell me about it"}}, nil, 3)
	w := &recordingWriter{}
	if err := loop.Run(context.Background(), sc, w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if w.countType(PartNewAction) != 0 {
		t.Fatalf("expected zero data-newAction events on clarification, got %d", w.countType(PartNewAction))
	}
	if w.countType(PartClarification) != 1 {
		t.Fatalf("expected exactly one clarification event, got %d", w.countType(PartClarification))
	}
	if len(sc.UsageEntries()) == 0 {
		t.Fatalf("expected clarifier usage to be reported")
	}
}

func TestLoop_Run_BudgetExhaustionProducesExactlyMaxStepsActionsThenFinalAnswer(t *testing.T) {
	const maxSteps = 2
	continueVerdict := `{"title":"search","reasoning":"need more","type":"continue","query":"q","feedback":"more evidence needed"}`
	gw := &scriptedGateway{
		answer: "Best effort answer given gaps.",
		objects: map[string][]string{
			"guardrail_verdict": {`{"allow": true}`},
			"clarifier_verdict": {`{"needs_clarification": false}`},
			"planner_action":    {continueVerdict, continueVerdict},
		},
	}
	loop := &Loop{
		Guardrail: &Guardrail{Gateway: gw},
		Clarifier: &Clarifier{Gateway: gw},
		Planner:   &Planner{Gateway: gw},
		Rewriter:  &QueryRewriter{Gateway: gw},
		Pipeline:  newTestPipeline(gw),
		Answerer:  &Answerer{Gateway: gw},
	}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "something undecidable"}}, nil, maxSteps)
	w := &recordingWriter{}
	if err := loop.Run(context.Background(), sc, w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := w.countType(PartNewAction); got != maxSteps {
		t.Fatalf("data-newAction count = %d, want %d", got, maxSteps)
	}
	if sc.CurrentStep() > maxSteps {
		t.Fatalf("CurrentStep() = %d, exceeds MAX_STEPS %d", sc.CurrentStep(), maxSteps)
	}
	if w.countType(PartTextDelta) == 0 {
		t.Fatalf("expected final-mode answer text deltas")
	}
}

func TestLoop_Run_UsageEventIDIsStableAcrossEmissions(t *testing.T) {
	continueVerdict := `{"title":"search","reasoning":"need more","type":"continue","query":"q","feedback":"more"}`
	answerVerdict := `{"title":"answer","reasoning":"done","type":"answer"}`
	gw := &scriptedGateway{
		answer: "done",
		objects: map[string][]string{
			"guardrail_verdict": {`{"allow": true}`},
			"clarifier_verdict": {`{"needs_clarification": false}`},
			"planner_action":    {continueVerdict, answerVerdict},
		},
	}
	loop := &Loop{
		Guardrail: &Guardrail{Gateway: gw},
		Clarifier: &Clarifier{Gateway: gw},
		Planner:   &Planner{Gateway: gw},
		Rewriter:  &QueryRewriter{Gateway: gw},
		Pipeline:  newTestPipeline(gw),
		Answerer:  &Answerer{Gateway: gw},
	}

	sc := NewSystemContext([]llm.Message{{Role: llm.RoleUser, Content: "q"}}, nil, 5)
	w := &recordingWriter{}
	if err := loop.Run(context.Background(), sc, w); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	seen := map[string]bool{}
	for _, p := range w.parts {
		if p.Type == PartUsage {
			seen[p.ID] = true
		}
	}
	if len(seen) != 1 {
		t.Fatalf("expected exactly one distinct data-usage id, got %d: %v", len(seen), seen)
	}
	if !seen[usageEventID] {
		t.Fatalf("expected data-usage id to equal usageEventID constant")
	}
}
