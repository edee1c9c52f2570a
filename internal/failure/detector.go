package failure

import (
	"math"
	"time"
)

// MinDeltaT floors the velocity denominator so back-to-back calls stay finite.
const MinDeltaT = time.Millisecond

// #region types

// Flags are informational and independent of the level.
type Flags struct {
	ExternalOverwriteSuspected bool `json:"external_overwrite_suspected"`
	NarrativeEntropyHigh       bool `json:"narrative_entropy_high"`
	IdentityEntropyHigh        bool `json:"identity_entropy_high"`
}

// Assessment is the per-turn health verdict. Level is 0 (healthy) to 4
// (collapse imminent).
type Assessment struct {
	Level             int      `json:"level"`
	HealthScore       float64  `json:"health_score"`
	DriftVelocity     float64  `json:"drift_velocity"`
	NarrativeEntropy  float64  `json:"narrative_entropy"`
	IdentityEntropy   float64  `json:"identity_entropy"`
	CollapseRiskScore float64  `json:"collapse_risk_score"`
	Flags             Flags    `json:"flags"`
	Reasons           []string `json:"reasons"`
}

// Input is one turn's health signals.
type Input struct {
	At                         time.Time // zero means time.Now()
	ContinuityConfidence       float64
	NarrativeCoherence         float64
	NarrativeEntropy           float64
	ValueStability             float64
	SelfModelConsistency       float64
	IdentityDistanceToCore     float64
	ExternalOverwriteSuspected bool
	ContradictionsOpen         int
}

// Memory is the detector's per-session state: the previous distance sample.
type Memory struct {
	PrevDistance float64   `json:"prev_distance"`
	PrevAt       time.Time `json:"prev_at"`
	Valid        bool      `json:"valid"`
}

// #endregion types

// #region config

// Config holds detector weights and thresholds.
type Config struct {
	WeightContinuity       float64 `yaml:"weight_continuity"`
	WeightNarrative        float64 `yaml:"weight_narrative"`
	WeightValue            float64 `yaml:"weight_value"`
	WeightSelf             float64 `yaml:"weight_self"`
	ContradictionOpenLimit int     `yaml:"contradiction_open_limit"`
	IdentityDistanceHigh   float64 `yaml:"identity_distance_high"` // normalizes distance to core
	DriftVelocityHigh      float64 `yaml:"drift_velocity_high"`    // normalizes distance change per second
	NarrativeEntropyHigh   float64 `yaml:"narrative_entropy_high"`
	IdentityEntropyHigh    float64 `yaml:"identity_entropy_high"`
}

// DefaultConfig returns the engineering defaults.
func DefaultConfig() Config {
	return Config{
		WeightContinuity:       0.28,
		WeightNarrative:        0.26,
		WeightValue:            0.24,
		WeightSelf:             0.22,
		ContradictionOpenLimit: 6,
		IdentityDistanceHigh:   1.0,
		DriftVelocityHigh:      0.0025,
		NarrativeEntropyHigh:   0.85,
		IdentityEntropyHigh:    0.75,
	}
}

// #endregion config

// #region levels

type levelRule struct {
	level  int
	reason string
	match  func(collapse, health float64, overwrite bool) bool
}

// levelRules is evaluated top to bottom; the first match wins.
var levelRules = []levelRule{
	{4, "collapse_imminent", func(c, _ float64, ow bool) bool { return c >= 0.90 || ow }},
	{3, "identity_threat", func(c, h float64, _ bool) bool { return c >= 0.70 || h <= 0.35 }},
	{2, "stability_risk", func(c, h float64, _ bool) bool { return c >= 0.52 || h <= 0.48 }},
	{1, "soft_warning", func(c, h float64, _ bool) bool { return c >= 0.35 || h <= 0.60 }},
	{0, "healthy", func(float64, float64, bool) bool { return true }},
}

// #endregion levels

// #region detector

// Detector computes failure assessments. It is stateless; velocity memory
// is passed in and returned per call.
type Detector struct {
	config Config
}

// NewDetector creates a detector.
func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// Assess scores one turn and returns the updated velocity memory.
func (d *Detector) Assess(mem Memory, in Input) (Assessment, Memory) {
	cfg := d.config
	now := in.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	dist := nonNegative(in.IdentityDistanceToCore)

	dv := 0.0
	if mem.Valid {
		dt := now.Sub(mem.PrevAt)
		if dt < MinDeltaT {
			dt = MinDeltaT
		}
		dv = math.Abs(dist-mem.PrevDistance) / dt.Seconds()
	}
	next := Memory{PrevDistance: dist, PrevAt: now, Valid: true}

	consistency := clamp01(in.SelfModelConsistency)
	limit := cfg.ContradictionOpenLimit
	if limit < 1 {
		limit = 1
	}
	contradictionTerm := clamp01(float64(in.ContradictionsOpen) / float64(limit))
	identityEntropy := clamp01(0.55*(1-consistency) + 0.45*contradictionTerm)

	health := clamp01(cfg.WeightContinuity*clamp01(in.ContinuityConfidence) +
		cfg.WeightNarrative*clamp01(in.NarrativeCoherence) +
		cfg.WeightValue*clamp01(in.ValueStability) +
		cfg.WeightSelf*consistency)

	entropy := clamp01(in.NarrativeEntropy)
	collapse := clamp01(0.35*ratio(dist, cfg.IdentityDistanceHigh) +
		0.30*ratio(dv, cfg.DriftVelocityHigh) +
		0.20*entropy +
		0.15*identityEntropy)
	if in.ExternalOverwriteSuspected {
		collapse = math.Max(collapse, 0.92)
	}

	a := Assessment{
		HealthScore:       health,
		DriftVelocity:     dv,
		NarrativeEntropy:  entropy,
		IdentityEntropy:   identityEntropy,
		CollapseRiskScore: collapse,
		Flags: Flags{
			ExternalOverwriteSuspected: in.ExternalOverwriteSuspected,
			NarrativeEntropyHigh:       entropy >= cfg.NarrativeEntropyHigh,
			IdentityEntropyHigh:        identityEntropy >= cfg.IdentityEntropyHigh,
		},
	}
	for _, r := range levelRules {
		if r.match(collapse, health, in.ExternalOverwriteSuspected) {
			a.Level = r.level
			a.Reasons = append(a.Reasons, r.reason)
			break
		}
	}
	if a.Flags.NarrativeEntropyHigh {
		a.Reasons = append(a.Reasons, "narrative_entropy_high")
	}
	if a.Flags.IdentityEntropyHigh {
		a.Reasons = append(a.Reasons, "identity_entropy_high")
	}
	return a, next
}

// #endregion detector

// #region helpers

func ratio(x, high float64) float64 {
	if high <= 0 {
		if x > 0 {
			return 1
		}
		return 0
	}
	return clamp01(x / high)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func nonNegative(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0
	}
	return x
}

// #endregion helpers
