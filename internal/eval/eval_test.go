package eval

import (
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// makeTurn runs a real turn so the subject is internally consistent.
func makeTurn(t *testing.T, overwrite bool) Subject {
	t.Helper()
	c := integration.NewController(integration.DefaultConfig(), nil)
	base := integration.Input{
		At:         t0,
		Continuity: signals.ContinuityMeta{Confidence: signals.Float(0.9)},
		Values:     map[string]float64{"care": 0.8},
	}
	_, prev, _, mem := c.Process(nil, integration.Memory{}, base)

	in := base
	in.At = t0.Add(time.Minute)
	in.ExternalOverwriteSuspected = overwrite
	res, next, _, _ := c.Process(prev, mem, in)
	g, _ := guardrail.NewEngine(guardrail.DefaultConfig()).Decide(guardrail.Memory{}, guardrail.Input{
		At:   in.At,
		Hint: res.GuardrailHint(),
	})
	return Subject{Prev: prev, Next: next, Integration: res, Guardrail: g}
}

func TestEvalPassesOnProcessedTurn(t *testing.T) {
	h := NewHarness(DefaultConfig())
	for _, overwrite := range []bool{false, true} {
		result := h.Run(makeTurn(t, overwrite))
		if !result.Passed {
			t.Fatalf("overwrite=%v: expected pass, got %s (%v)", overwrite, result.Reason, result.Failed())
		}
		if len(result.Checks) == 0 {
			t.Fatal("expected checks")
		}
	}
}

func TestEvalFailsOnBudgetOutOfRange(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := makeTurn(t, false)
	s.Next.StabilityBudget = s.Next.BudgetMax + 0.5

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail on budget above max")
	}
	if got := result.Failed(); len(got) != 1 || got[0] != "stability_budget" {
		t.Fatalf("expected only stability_budget to fail, got %v", got)
	}
}

func TestEvalFailsOnCoreHashChange(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := makeTurn(t, false)
	s.Next.Attractor.CoreHash = "tampered"

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail on core hash change")
	}
	if !strings.Contains(result.Reason, "core anchor") {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestEvalFailsOnUnknownNames(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := makeTurn(t, false)
	s.Next.Phase = temporal.Phase("DRIFTING")
	s.Integration.Subjectivity.Mode = "S9"
	s.Integration.Failure.Level = 7

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail")
	}
	if !strings.Contains(result.Reason, "3 checks") {
		t.Fatalf("expected three failures, got %s (%v)", result.Reason, result.Failed())
	}
}

func TestEvalFailsWhenSafeNotEnforced(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := makeTurn(t, true)
	s.Guardrail.Mode = guardrail.ModeNormal

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail when guardrail ignores SAFE")
	}
	if got := result.Failed(); len(got) != 1 || got[0] != "safe_mode_enforced" {
		t.Fatalf("unexpected failures %v", got)
	}
}

func TestEvalNilState(t *testing.T) {
	result := NewHarness(DefaultConfig()).Run(Subject{})
	if result.Passed {
		t.Fatal("expected fail without a state")
	}
}
