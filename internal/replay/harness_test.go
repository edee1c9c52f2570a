package replay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/google/go-cmp/cmp"
)

func TestReplay_FixtureMatchesExpectations(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "sessions.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	report, err := Replay(context.Background(), f, session.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if lines := MismatchLines(report); len(lines) != 0 {
		t.Fatalf("unexpected mismatches:\n%v", lines)
	}

	s := report.Summary
	if s.TotalTurns != 6 || s.Commits != 6 || s.Rejected != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if diff := cmp.Diff(map[string]int{"NORMAL": 4, "SAFE": 2}, s.BySafetyMode); diff != "" {
		t.Fatalf("safety histogram mismatch (-want +got):\n%s", diff)
	}

	// results keep fixture order regardless of scheduling
	if report.Results[0].SessionID != "steady" || report.Results[3].SessionID != "overwrite" {
		t.Fatalf("unexpected result order: %s, %s", report.Results[0].SessionID, report.Results[3].SessionID)
	}
	want := []string{"IDENTITY_PHASE_CHANGE", "SUBJECTIVITY_MODE_CHANGE", "FAILURE_ALERT", "STABILITY_WARNING", "AUTO_RECOVERY"}
	if diff := cmp.Diff(want, report.Results[4].Events); diff != "" {
		t.Fatalf("overwrite events mismatch (-want +got):\n%s", diff)
	}
	if report.Results[4].TraceID != "overwrite-001" {
		t.Fatalf("expected generated trace id, got %s", report.Results[4].TraceID)
	}
}

func TestReplay_ReportsMismatches(t *testing.T) {
	f, err := ParseFixture([]byte(`{
		"sessions": [{
			"session_id": "a",
			"turns": [{"continuity": {"confidence": 0.9}}],
			"expected": [{"safety_mode": "SAFE", "phase": "NORMAL"}]
		}]
	}`))
	if err != nil {
		t.Fatalf("ParseFixture: %v", err)
	}
	report, err := Replay(context.Background(), f, session.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	lines := MismatchLines(report)
	if diff := cmp.Diff([]string{"a#0: safety_mode: want SAFE, got NORMAL"}, lines); diff != "" {
		t.Fatalf("mismatch lines (-want +got):\n%s", diff)
	}
}

func TestReplay_Deterministic(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "sessions.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	a, err := Replay(context.Background(), f, session.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	b, err := Replay(context.Background(), f, session.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("replay not deterministic (-first +second):\n%s", diff)
	}
}

func TestReplay_CancelledContext(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "sessions.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	if _, err := Replay(ctx, f, session.DefaultConfig(), nil); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]TurnResult{
		{SafetyMode: "NORMAL", Committed: true},
		{SafetyMode: "GUARDED", Committed: true, Mismatches: []string{"x", "y"}},
		{SafetyMode: "SAFE", Committed: false},
	})
	if s.TotalTurns != 3 || s.Commits != 2 || s.Rejected != 1 || s.Mismatches != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
}
