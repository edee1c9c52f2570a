package signals

// #region meta-records
// Upstream collaborators publish these records each turn. Pointer fields are
// optional; absence is resolved by the Producer to a documented default.

// ContinuityMeta is the continuity detector's output.
type ContinuityMeta struct {
	Confidence *float64 `json:"confidence,omitempty"`
	Degraded   bool     `json:"degraded,omitempty"`
}

// NarrativeMeta is the narrative tracker's output.
type NarrativeMeta struct {
	ThemeLabel                 string   `json:"theme_label,omitempty"`
	FragmentationEntropy       *float64 `json:"fragmentation_entropy,omitempty"`
	CoherenceScore             *float64 `json:"coherence_score,omitempty"`
	IdentityUncertaintyEntropy *float64 `json:"identity_uncertainty_entropy,omitempty"`
	CollapseSuspected          bool     `json:"collapse_suspected,omitempty"`
	Contradictions             []string `json:"contradictions,omitempty"`
}

// SelfMeta is the self-model monitor's output.
type SelfMeta struct {
	CoherenceScore     *float64 `json:"coherence_score,omitempty"`
	NoiseLevel         *float64 `json:"noise_level,omitempty"`
	OpenContradictions int      `json:"open_contradictions,omitempty"`
}

// ValueMeta is the value drift integrator's output. StabilityScore wins
// over the legacy Stability field when both are present.
type ValueMeta struct {
	StabilityScore *float64           `json:"stability_score,omitempty"`
	Stability      *float64           `json:"stability,omitempty"`
	Values         map[string]float64 `json:"values,omitempty"`
}

// TelemetryMeta carries the smoothed C/N/M/S/R channels and relationship flags.
type TelemetryMeta struct {
	EMA            map[string]float64 `json:"ema,omitempty"`
	AttachmentRisk *float64           `json:"attachment_risk,omitempty"`
}

// #endregion meta-records

// #region config
// ProducerConfig holds the defaults applied to absent fields.
type ProducerConfig struct {
	DefaultConfidence      float64 `yaml:"default_confidence"`      // continuity confidence when absent
	DefaultCoherence       float64 `yaml:"default_coherence"`       // narrative and self-model coherence when absent
	DefaultValueStability  float64 `yaml:"default_value_stability"` // value stability when absent
	ContradictionOpenLimit int     `yaml:"-"`                       // normalizes open contradictions into pressure; mirrors failure.contradiction_open_limit
}

// DefaultProducerConfig returns the conservative defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		DefaultConfidence:      0.5,
		DefaultCoherence:       0.5,
		DefaultValueStability:  0.5,
		ContradictionOpenLimit: 6,
	}
}

// #endregion config

// #region derived
// Derived is the typed engine input set resolved from the meta records.
type Derived struct {
	ContinuityConfidence  float64
	ContinuityDegraded    bool
	NarrativeCoherence    float64
	NarrativeEntropy      float64
	NarrativeCollapse     bool
	ValueStability        float64
	SelfModelConsistency  float64
	ContradictionsOpen    int
	ContradictionPressure float64
}

// #endregion derived
