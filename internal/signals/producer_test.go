package signals

import (
	"math"
	"testing"
)

func TestProduce_Defaults(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	d := p.Produce(ContinuityMeta{}, NarrativeMeta{}, SelfMeta{}, ValueMeta{})

	if d.ContinuityConfidence != 0.5 {
		t.Errorf("expected default confidence 0.5, got %f", d.ContinuityConfidence)
	}
	if d.NarrativeCoherence != 0.5 || d.ValueStability != 0.5 {
		t.Errorf("expected 0.5 defaults, got coherence=%f stability=%f", d.NarrativeCoherence, d.ValueStability)
	}
	// 0.65*0.5 + 0.35*1
	if math.Abs(d.SelfModelConsistency-0.675) > 1e-9 {
		t.Errorf("expected self-model consistency 0.675, got %f", d.SelfModelConsistency)
	}
	if d.NarrativeEntropy != 0 || d.ContradictionPressure != 0 {
		t.Errorf("expected zero entropy/pressure, got %f/%f", d.NarrativeEntropy, d.ContradictionPressure)
	}
}

func TestProduce_ClampsAndNaN(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	d := p.Produce(
		ContinuityMeta{Confidence: Float(math.NaN())},
		NarrativeMeta{FragmentationEntropy: Float(3), CoherenceScore: Float(-1)},
		SelfMeta{CoherenceScore: Float(2), NoiseLevel: Float(-5), OpenContradictions: -3},
		ValueMeta{},
	)

	if d.ContinuityConfidence != 0.5 {
		t.Errorf("NaN confidence should fall back to default, got %f", d.ContinuityConfidence)
	}
	if d.NarrativeEntropy != 1 || d.NarrativeCoherence != 0 {
		t.Errorf("expected clamped narrative, got entropy=%f coherence=%f", d.NarrativeEntropy, d.NarrativeCoherence)
	}
	if d.SelfModelConsistency != 1 {
		t.Errorf("expected clamped self-model consistency 1, got %f", d.SelfModelConsistency)
	}
	if d.ContradictionsOpen != 0 {
		t.Errorf("negative contradictions should clamp to 0, got %d", d.ContradictionsOpen)
	}
}

func TestValueStability_Precedence(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())

	if got := p.ValueStability(ValueMeta{StabilityScore: Float(0.9), Stability: Float(0.1)}); got != 0.9 {
		t.Errorf("stability_score should win, got %f", got)
	}
	if got := p.ValueStability(ValueMeta{Stability: Float(0.3)}); got != 0.3 {
		t.Errorf("stability fallback expected 0.3, got %f", got)
	}
	if got := p.ValueStability(ValueMeta{StabilityScore: Float(math.Inf(1)), Stability: Float(0.4)}); got != 0.4 {
		t.Errorf("non-finite score should fall through, got %f", got)
	}
}

func TestContradictionPressure(t *testing.T) {
	cases := []struct {
		open, limit int
		want        float64
	}{
		{0, 6, 0},
		{3, 6, 0.5},
		{6, 6, 1},
		{12, 6, 1},
		{1, 0, 1},
	}
	for _, c := range cases {
		if got := ContradictionPressure(c.open, c.limit); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("ContradictionPressure(%d, %d) = %f, want %f", c.open, c.limit, got, c.want)
		}
	}
}
