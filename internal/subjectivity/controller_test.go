package subjectivity

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func uniform(v float64) Scores {
	return Scores{C: v, N: v, M: v, S: v, R: v}
}

func TestEvaluateProgressesAfterSeveralTicks(t *testing.T) {
	c := NewController(DefaultConfig())
	var mem Memory
	var d Decision

	firstS1 := -1
	for i := 0; i < 30; i++ {
		d, mem = c.Evaluate(mem, Input{At: t0.Add(time.Duration(i) * time.Minute), Scores: uniform(0.9)})
		if d.Mode == ModeSafe {
			t.Fatalf("tick %d: healthy scores must never reach S3", i)
		}
		if d.Mode == ModeProto && firstS1 < 0 {
			firstS1 = i
			if d.Event == nil || d.Event.FromMode != ModeTool || d.Event.ToMode != ModeProto {
				t.Fatalf("expected S0->S1 event, got %+v", d.Event)
			}
		}
	}
	if firstS1 < 2 {
		t.Fatalf("expected S1 only after several ticks, got tick %d", firstS1)
	}
	if d.Mode != ModeFunctional {
		t.Fatalf("sustained high scores should reach S2, got %s", d.Mode)
	}
}

func TestEvaluateHysteresisNoChatter(t *testing.T) {
	c := NewController(DefaultConfig())
	mem := Memory{Mode: ModeProto, FEMA: 0.65}

	flips := 0
	for i := 0; i < 200; i++ {
		f := 0.70
		if i%2 == 1 {
			f = 0.60
		}
		var d Decision
		d, mem = c.Evaluate(mem, Input{At: t0, Scores: uniform(f)})
		if d.Event != nil {
			flips++
		}
	}
	if flips > 1 {
		t.Fatalf("mode chattered %d times inside the hysteresis band", flips)
	}
}

func TestEvaluateEmergencyDominance(t *testing.T) {
	c := NewController(DefaultConfig())
	mem := Memory{Mode: ModeFunctional, FEMA: 0.95}

	d, next := c.Evaluate(mem, Input{At: t0, Scores: uniform(1), ExternalOverwriteSuspected: true, ForcedMode: "S2"})

	if d.Mode != ModeSafe || !d.Emergency {
		t.Fatalf("expected S3_SAFE emergency, got %s", d.Mode)
	}
	if d.Confidence > 0.55 {
		t.Fatalf("confidence must be capped during emergency, got %f", d.Confidence)
	}
	if d.Event == nil || d.Event.FromMode != ModeFunctional || d.Event.ToMode != ModeSafe {
		t.Fatalf("expected S2->S3 event, got %+v", d.Event)
	}
	if next.Mode != ModeSafe {
		t.Fatalf("memory should record S3, got %s", next.Mode)
	}
}

func TestEvaluateEmergencySources(t *testing.T) {
	c := NewController(DefaultConfig())
	level := 3
	cases := map[string]Input{
		"narrative_collapse_suspected":       {NarrativeCollapseSuspected: true},
		"self_model_fragmentation_suspected": {SelfModelFragmentationSuspected: true},
		"stability_budget_low":               {Temporal: &TemporalSnapshot{StabilityBudget: 0.22, BudgetMinSafe: 0.22}},
		"failure_level=3>=3":                 {FailureLevel: &level},
	}
	for reason, in := range cases {
		in.At = t0
		d, _ := c.Evaluate(Memory{Mode: ModeProto, FEMA: 0.5}, in)
		if d.Mode != ModeSafe {
			t.Errorf("%s: expected S3_SAFE, got %s", reason, d.Mode)
		}
		if diff := cmp.Diff([]string{reason}, d.Reasons); diff != "" {
			t.Errorf("%s: reasons mismatch (-want +got):\n%s", reason, diff)
		}
	}
}

func TestEvaluateSafeIsSticky(t *testing.T) {
	c := NewController(DefaultConfig())
	mem := Memory{Mode: ModeSafe, FEMA: 0.9}

	for i := 0; i < 10; i++ {
		var d Decision
		d, mem = c.Evaluate(mem, Input{At: t0, Scores: uniform(0.9)})
		if d.Mode != ModeSafe || d.Event != nil {
			t.Fatalf("tick %d: S3_SAFE should hold without operator action, got %s", i, d.Mode)
		}
	}
}

func TestEvaluateForcedModeLifecycle(t *testing.T) {
	c := NewController(DefaultConfig())

	d, mem := c.Evaluate(Memory{Mode: ModeSafe}, Input{At: t0, ForcedMode: " s0 "})
	if d.Mode != ModeTool || mem.Forced != ModeTool {
		t.Fatalf("forced S0 should release S3, got %s forced=%s", d.Mode, mem.Forced)
	}
	if d.Event == nil || d.Event.ToMode != ModeTool {
		t.Fatalf("expected transition event, got %+v", d.Event)
	}

	// override persists across turns while scores would otherwise lift the mode
	mem.FEMA = 0.9
	d, mem = c.Evaluate(mem, Input{At: t0, Scores: uniform(0.9)})
	if d.Mode != ModeTool || d.Forced != ModeTool {
		t.Fatalf("override should persist, got %s", d.Mode)
	}

	d, mem = c.Evaluate(mem, Input{At: t0, Scores: uniform(0.9), ForcedMode: "AUTO"})
	if mem.Forced != "" {
		t.Fatalf("AUTO should clear override, got %s", mem.Forced)
	}
	if d.Mode != ModeProto {
		t.Fatalf("automatic evaluation should step one mode up, got %s", d.Mode)
	}

	d, _ = c.Evaluate(mem, Input{At: t0, ForcedMode: "S3"})
	if d.Mode != ModeSafe || !d.Emergency || d.Confidence > 0.55 {
		t.Fatalf("explicit S3 request should act as emergency, got %+v", d)
	}

	d, _ = c.Evaluate(mem, Input{At: t0, ForcedMode: "S9"})
	if d.Reasons[0] != "forced_mode_ignored=S9" {
		t.Fatalf("unknown forced mode should be reported, got %v", d.Reasons)
	}
}

func TestEvaluateNormalReason(t *testing.T) {
	c := NewController(DefaultConfig())
	d, _ := c.Evaluate(Memory{}, Input{At: t0, Scores: uniform(0.1)})
	if diff := cmp.Diff([]string{"normal_evaluation"}, d.Reasons); diff != "" {
		t.Fatalf("reasons mismatch (-want +got):\n%s", diff)
	}
	if d.Mode != ModeTool {
		t.Fatalf("expected initial S0_TOOL, got %s", d.Mode)
	}
	if d.Event != nil {
		t.Fatal("no event expected without a mode change")
	}
}

func TestNewControllerRepairsInvertedBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnterFunctional = 0.4
	cfg.ExitFunctional = 0.6
	cfg.EMAAlpha = 3
	cfg.InitialMode = "S7"

	got := NewController(cfg).Config()
	def := DefaultConfig()
	if got.EnterFunctional != def.EnterFunctional || got.ExitFunctional != def.ExitFunctional {
		t.Fatalf("inverted band not repaired: %+v", got)
	}
	if got.EMAAlpha != def.EMAAlpha || got.InitialMode != def.InitialMode {
		t.Fatalf("invalid alpha/initial mode not repaired: %+v", got)
	}
}

func TestEvaluateBounds(t *testing.T) {
	c := NewController(DefaultConfig())
	rng := rand.New(rand.NewSource(3))
	var mem Memory
	for i := 0; i < 2000; i++ {
		in := Input{
			At:                         t0,
			Scores:                     Scores{C: rng.Float64()*3 - 1, N: rng.Float64(), M: rng.Float64(), S: rng.Float64(), R: rng.Float64()},
			ExternalOverwriteSuspected: rng.Intn(50) == 0,
		}
		if rng.Intn(40) == 0 {
			in.ForcedMode = []string{"S0", "S1", "S2", "AUTO"}[rng.Intn(4)]
		}
		var d Decision
		d, mem = c.Evaluate(mem, in)
		for name, v := range map[string]float64{
			"f":          d.FScore,
			"f_ema":      d.FEMA,
			"confidence": d.Confidence,
			"p":          d.PSubjective,
		} {
			if v < 0 || v > 1 {
				t.Fatalf("call %d: %s out of range: %f", i, name, v)
			}
		}
		if !d.Mode.Valid() {
			t.Fatalf("call %d: invalid mode %q", i, d.Mode)
		}
	}
}

func TestParseForcedMode(t *testing.T) {
	cases := []struct {
		raw   string
		mode  Mode
		reset bool
		ok    bool
	}{
		{"S1", ModeProto, false, true},
		{"s2_functional", ModeFunctional, false, true},
		{"none", "", true, true},
		{"", "", false, false},
		{"bogus", "", false, false},
	}
	for _, c := range cases {
		m, reset, ok := ParseForcedMode(c.raw)
		if m != c.mode || reset != c.reset || ok != c.ok {
			t.Errorf("ParseForcedMode(%q) = (%q, %v, %v), want (%q, %v, %v)", c.raw, m, reset, ok, c.mode, c.reset, c.ok)
		}
	}
}
