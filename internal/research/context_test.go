package research

import (
	"testing"

	"deepresearch/internal/llm"
)

func TestSystemContext_InitialAndLatestUserMessage(t *testing.T) {
	sc := NewSystemContext([]llm.Message{
		{Role: llm.RoleUser, Content: "first question"},
		{Role: llm.RoleAssistant, Content: "reply"},
		{Role: llm.RoleUser, Content: "second question"},
	}, nil, 5)

	if got := sc.InitialQuestion(); got != "first question" {
		t.Fatalf("InitialQuestion() = %q, want %q", got, "first question")
	}
	if got := sc.LatestUserMessage(); got != "second question" {
		t.Fatalf("LatestUserMessage() = %q, want %q", got, "second question")
	}
}

func TestSystemContext_ShouldStopRespectsMaxSteps(t *testing.T) {
	sc := NewSystemContext(nil, nil, 2)
	if sc.ShouldStop() {
		t.Fatalf("ShouldStop() = true at step 0, want false")
	}
	sc.IncrementStep()
	if sc.ShouldStop() {
		t.Fatalf("ShouldStop() = true at step 1 (max 2), want false")
	}
	sc.IncrementStep()
	if !sc.ShouldStop() {
		t.Fatalf("ShouldStop() = false at step 2 (max 2), want true")
	}
}

func TestSystemContext_ShouldStopDefaultsMaxStepsWhenNonPositive(t *testing.T) {
	sc := NewSystemContext(nil, nil, 0)
	if sc.maxSteps != 5 {
		t.Fatalf("maxSteps = %d, want default of 5", sc.maxSteps)
	}
}

func TestSystemContext_TotalTokensSumsReportedUsage(t *testing.T) {
	sc := NewSystemContext(nil, nil, 5)
	sc.ReportUsage("planner", llm.Usage{TotalTokens: 10})
	sc.ReportUsage("answerer", llm.Usage{TotalTokens: 25})

	if got := sc.TotalTokens(); got != 35 {
		t.Fatalf("TotalTokens() = %d, want 35", got)
	}
	if len(sc.UsageEntries()) != 2 {
		t.Fatalf("UsageEntries() len = %d, want 2", len(sc.UsageEntries()))
	}
}

func TestSystemContext_LastFeedbackRoundTrips(t *testing.T) {
	sc := NewSystemContext(nil, nil, 5)
	if sc.LastFeedback() != nil {
		t.Fatalf("LastFeedback() initial = %v, want nil", sc.LastFeedback())
	}
	feedback := "need more recent sources"
	sc.SetLastFeedback(&feedback)
	if got := sc.LastFeedback(); got == nil || *got != feedback {
		t.Fatalf("LastFeedback() = %v, want %q", got, feedback)
	}
}

func TestSystemContext_UserLocationContextEmptyWhenNoLocation(t *testing.T) {
	sc := NewSystemContext(nil, nil, 5)
	if got := sc.UserLocationContext(); got != "" {
		t.Fatalf("UserLocationContext() = %q, want empty", got)
	}

	sc2 := NewSystemContext(nil, &UserLocation{City: "Berlin", Country: "Germany"}, 5)
	got := sc2.UserLocationContext()
	if got == "" {
		t.Fatalf("UserLocationContext() = empty, want non-empty")
	}
}

func TestSystemContext_SearchHistoryTextEmptyWithNoSearches(t *testing.T) {
	sc := NewSystemContext(nil, nil, 5)
	if got := sc.SearchHistoryText(); got != "" {
		t.Fatalf("SearchHistoryText() = %q, want empty", got)
	}

	sc.ReportSearch(SearchEntry{
		Query:     "golang generics",
		Sources:   []SearchSource{{Title: "Go blog", URL: "https://go.dev/blog/generics"}},
		Summaries: []string{"Generics landed in Go 1.18."},
	})
	got := sc.SearchHistoryText()
	if got == "" {
		t.Fatalf("SearchHistoryText() = empty after ReportSearch, want non-empty")
	}
}
