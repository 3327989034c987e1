package llm

import "testing"

func TestRecordTokenMetrics_AccumulatesPerModel(t *testing.T) {
	resetTokenMetricsState()
	defer resetTokenMetricsState()

	RecordTokenMetrics("gpt-5", 100, 50)
	RecordTokenMetrics("gpt-5", 20, 10)
	RecordTokenMetrics("gpt-4", 5, 5)

	totals := TokenTotalsSnapshot()
	if len(totals) != 2 {
		t.Fatalf("expected 2 models, got %d", len(totals))
	}
	if totals[0].Model != "gpt-5" || totals[0].Prompt != 120 || totals[0].Completion != 60 {
		t.Fatalf("unexpected totals for gpt-5: %+v", totals[0])
	}
}

func TestRecordTokenMetrics_IgnoresEmptyCalls(t *testing.T) {
	resetTokenMetricsState()
	defer resetTokenMetricsState()

	RecordTokenMetrics("", 10, 10)
	RecordTokenMetrics("gpt-5", 0, 0)

	if len(TokenTotalsSnapshot()) != 0 {
		t.Fatalf("expected no totals recorded")
	}
}

func TestConfigureLogging_GatesRedactedLogging(t *testing.T) {
	ConfigureLogging(false, 0)
	ok, _ := shouldLog()
	if ok {
		t.Fatalf("expected logging disabled by default")
	}

	ConfigureLogging(true, 256)
	ok, trunc := shouldLog()
	if !ok || trunc != 256 {
		t.Fatalf("expected logging enabled with truncate=256, got ok=%v trunc=%d", ok, trunc)
	}
	ConfigureLogging(false, 0)
}
