package signals

import "math"

// #region producer

// Producer resolves upstream meta records into engine inputs. It never fails:
// missing or non-finite values fall back to the configured defaults.
type Producer struct {
	config ProducerConfig
}

// NewProducer creates a Producer.
func NewProducer(config ProducerConfig) *Producer {
	return &Producer{config: config}
}

// #endregion producer

// #region produce

// Produce derives all engine inputs from the given records.
func (p *Producer) Produce(continuity ContinuityMeta, narrative NarrativeMeta, self SelfMeta, value ValueMeta) Derived {
	open := self.OpenContradictions
	if open < 0 {
		open = 0
	}
	return Derived{
		ContinuityConfidence:  clamp(orDefault(continuity.Confidence, p.config.DefaultConfidence)),
		ContinuityDegraded:    continuity.Degraded,
		NarrativeCoherence:    clamp(orDefault(narrative.CoherenceScore, p.config.DefaultCoherence)),
		NarrativeEntropy:      clamp(orDefault(narrative.FragmentationEntropy, 0)),
		NarrativeCollapse:     narrative.CollapseSuspected,
		ValueStability:        p.ValueStability(value),
		SelfModelConsistency:  p.SelfModelConsistency(self),
		ContradictionsOpen:    open,
		ContradictionPressure: ContradictionPressure(open, p.config.ContradictionOpenLimit),
	}
}

// #endregion produce

// #region proxies

// SelfModelConsistency blends coherence with the inverse of self-model noise.
func (p *Producer) SelfModelConsistency(self SelfMeta) float64 {
	coherence := orDefault(self.CoherenceScore, p.config.DefaultCoherence)
	noise := orDefault(self.NoiseLevel, 0)
	return clamp(0.65*coherence + 0.35*(1-noise))
}

// ValueStability prefers StabilityScore, then Stability, then the default.
func (p *Producer) ValueStability(value ValueMeta) float64 {
	switch {
	case value.StabilityScore != nil && finite(*value.StabilityScore):
		return clamp(*value.StabilityScore)
	case value.Stability != nil && finite(*value.Stability):
		return clamp(*value.Stability)
	}
	return clamp(p.config.DefaultValueStability)
}

// ContradictionPressure normalizes an open-contradiction count against limit.
func ContradictionPressure(open, limit int) float64 {
	if limit < 1 {
		limit = 1
	}
	if open < 0 {
		open = 0
	}
	return clamp(float64(open) / float64(limit))
}

// #endregion proxies

// #region helpers

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 {
	return &v
}

func orDefault(v *float64, def float64) float64 {
	if v == nil || !finite(*v) {
		return def
	}
	return *v
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clamp(x float64) float64 {
	if !finite(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion helpers
