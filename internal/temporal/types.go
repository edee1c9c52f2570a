package temporal

import "time"

// SchemaVersion is the TemporalIdentityState layout this engine reads and writes.
const SchemaVersion = 1

// #region phase
// Phase is the identity phase state machine position.
type Phase string

const (
	PhaseNormal         Phase = "NORMAL"
	PhaseShockLock      Phase = "SHOCK_LOCK"
	PhaseReconstruction Phase = "RECONSTRUCTION"
	PhaseDegradedSafe   Phase = "DEGRADED_SAFE"
)

// Valid reports whether p is one of the four declared phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseNormal, PhaseShockLock, PhaseReconstruction, PhaseDegradedSafe:
		return true
	}
	return false
}

// #endregion phase

// #region plasticity
// PlasticityProfile bounds how much each category may move per turn and how
// the stability budget recovers.
type PlasticityProfile struct {
	CoreValuesMaxDelta   float64 `json:"core_values_max_delta" yaml:"core_values_max_delta"`
	NarrativeMaxDelta    float64 `json:"narrative_max_delta" yaml:"narrative_max_delta"`
	StyleMaxDelta        float64 `json:"style_max_delta" yaml:"style_max_delta"`
	ToolPolicyMaxDelta   float64 `json:"tool_policy_max_delta" yaml:"tool_policy_max_delta"`
	RecoveryRate         float64 `json:"recovery_rate" yaml:"recovery_rate"`                   // budget per hour
	IrreversibleCostRate float64 `json:"irreversible_cost_rate" yaml:"irreversible_cost_rate"` // charged on reconstruction
}

// DefaultPlasticityProfile returns the engineering defaults.
func DefaultPlasticityProfile() PlasticityProfile {
	return PlasticityProfile{
		CoreValuesMaxDelta:   0.02,
		NarrativeMaxDelta:    0.06,
		StyleMaxDelta:        0.10,
		ToolPolicyMaxDelta:   0.05,
		RecoveryRate:         0.12,
		IrreversibleCostRate: 0.25,
	}
}

// Category names a plasticity bucket.
type Category string

const (
	CategoryCoreValues Category = "core_values"
	CategoryNarrative  Category = "narrative"
	CategoryStyle      Category = "style"
	CategoryToolPolicy Category = "tool_policy"
)

// #endregion plasticity

// #region flags
// ContinuityFlags are recomputed on every tick.
type ContinuityFlags struct {
	ContinuityBreakSuspected   bool `json:"continuity_break_suspected"`
	HighNoiseSuspected         bool `json:"high_noise_suspected"`
	ExternalOverwriteSuspected bool `json:"external_overwrite_suspected"`
	FragmentationSuspected     bool `json:"fragmentation_suspected"`
}

// IntegrityFlags mark states that need operator attention.
type IntegrityFlags struct {
	SchemaMismatch       bool `json:"schema_mismatch"`
	SnapshotRequired     bool `json:"snapshot_required"`
	ManualReviewRequired bool `json:"manual_review_required"`
}

// #endregion flags

// #region attractor
// AttractorState holds only observable distances and anchor hashes.
type AttractorState struct {
	DistToCore   float64 `json:"dist_to_core"`
	DistToMiddle float64 `json:"dist_to_middle"`
	CoreHash     string  `json:"core_hash,omitempty"`
	MiddleHash   string  `json:"middle_hash,omitempty"`
}

// Anchor is an opaque value/trait snapshot used as a reference point.
type Anchor struct {
	Value         map[string]float64 `json:"value"`
	Trait         map[string]float64 `json:"trait"`
	Ego           map[string]any     `json:"ego,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
	SchemaVersion int                `json:"schema_version"`
}

// #endregion attractor

// #region phase-event
// CausalTrace records the inputs that produced a phase change.
type CausalTrace struct {
	TraceID                    string  `json:"trace_id,omitempty"`
	ExternalOverwriteSuspected bool    `json:"external_overwrite_suspected"`
	SchemaMismatch             bool    `json:"schema_mismatch"`
	TriggerReconstruction      bool    `json:"trigger_reconstruction"`
	DriftMagnitude             float64 `json:"drift_magnitude"`
	ContradictionPressure      float64 `json:"contradiction_pressure"`
	NarrativeEntropy           float64 `json:"narrative_entropy"`
	StabilityBudget            float64 `json:"stability_budget"`
}

// PhaseEvent is emitted exactly once per phase change.
type PhaseEvent struct {
	EventID      string      `json:"event_id"`
	At           time.Time   `json:"at"`
	FromPhase    Phase       `json:"from_phase"`
	ToPhase      Phase       `json:"to_phase"`
	Confidence   float64     `json:"confidence"`
	CausalTrace  CausalTrace `json:"causal_trace"`
	TelemetryRef string      `json:"telemetry_ref,omitempty"`
}

// #endregion phase-event

// #region tick-input
// TickInput carries one turn's externally computed signals into Tick.
type TickInput struct {
	At                         time.Time // zero means time.Now()
	TraceID                    string
	ContinuityConfidence       float64
	ContinuityFlags            *ContinuityFlags // optional caller flags, OR-ed with the recomputed ones
	DriftMagnitude             float64
	ContradictionPressure      float64
	ExternalOverwriteSuspected bool
	Values                     map[string]float64
	Traits                     map[string]float64
	Ego                        map[string]any
	NarrativeEntropy           float64
	TriggerReconstruction      bool
}

// #endregion tick-input

// #region telemetry
// Telemetry is the per-tick observable summary handed to downstream engines.
type Telemetry struct {
	At                   time.Time       `json:"at"`
	IdentityID           string          `json:"identity_id"`
	Phase                Phase           `json:"phase"`
	Inertia              float64         `json:"inertia"`
	ShockLock            float64         `json:"shock_lock"`
	ContextCoupling      float64         `json:"context_coupling"`
	StabilityBudget      float64         `json:"stability_budget"`
	BudgetMinSafe        float64         `json:"budget_min_safe"`
	ContinuityConfidence float64         `json:"continuity_confidence"`
	DistToCore           float64         `json:"dist_to_core"`
	DistToMiddle         float64         `json:"dist_to_middle"`
	Flags                ContinuityFlags `json:"flags"`
	Integrity            IntegrityFlags  `json:"integrity"`
	RecentPhaseEventIDs  []string        `json:"recent_phase_event_ids"`
}

// #endregion telemetry

// #region config
// Config holds tunables for the temporal identity physics.
type Config struct {
	ContinuityEMAAlpha       float64           `yaml:"continuity_ema_alpha"`       // continuity smoothing (default 0.18)
	ShockHalfLife            time.Duration     `yaml:"shock_half_life"`            // shock lock decay (default 6h)
	MiddleAnchorAlpha        float64           `yaml:"middle_anchor_alpha"`        // middle anchor EMA (default 0.04)
	MiddleAnchorMinBudget    float64           `yaml:"middle_anchor_min_budget"`   // budget needed to move the middle anchor
	ContinuityBreakThreshold float64           `yaml:"continuity_break_threshold"` // smoothed confidence below this = break
	NarrativeEntropyHigh     float64           `yaml:"-"`                          // entropy at/above this = fragmentation; mirrors failure.narrative_entropy_high
	TraitWeight              float64           `yaml:"trait_weight"`               // trait distance weight vs value distance
	BaseInertia              float64           `yaml:"base_inertia"`
	ContextCoupling          float64           `yaml:"context_coupling"`
	BudgetMax                float64           `yaml:"budget_max"`
	BudgetMinSafe            float64           `yaml:"budget_min_safe"`
	PhaseHistoryCap          int               `yaml:"phase_history_cap"`
	Plasticity               PlasticityProfile `yaml:"plasticity"`
}

// DefaultConfig returns the engineering defaults.
func DefaultConfig() Config {
	return Config{
		ContinuityEMAAlpha:       0.18,
		ShockHalfLife:            6 * time.Hour,
		MiddleAnchorAlpha:        0.04,
		MiddleAnchorMinBudget:    0.5,
		ContinuityBreakThreshold: 0.32,
		NarrativeEntropyHigh:     0.85,
		TraitWeight:              0.75,
		BaseInertia:              0.72,
		ContextCoupling:          0.55,
		BudgetMax:                1.0,
		BudgetMinSafe:            0.22,
		PhaseHistoryCap:          200,
		Plasticity:               DefaultPlasticityProfile(),
	}
}

// #endregion config
