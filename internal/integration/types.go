package integration

import (
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/failure"
	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/subjectivity"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

// #region safety-mode

// SafetyMode is the turn's final arbitration.
type SafetyMode string

const (
	SafetyNormal  SafetyMode = "NORMAL"
	SafetyGuarded SafetyMode = "GUARDED"
	SafetySafe    SafetyMode = "SAFE"
)

// Valid reports whether m is a declared safety mode.
func (m SafetyMode) Valid() bool {
	return m == SafetyNormal || m == SafetyGuarded || m == SafetySafe
}

// #endregion safety-mode

// #region events

// EventType names an entry on the per-turn event list.
type EventType string

const (
	EventIdentityPhaseChange    EventType = "IDENTITY_PHASE_CHANGE"
	EventSubjectivityModeChange EventType = "SUBJECTIVITY_MODE_CHANGE"
	EventFailureAlert           EventType = "FAILURE_ALERT"
	EventStabilityWarning       EventType = "STABILITY_WARNING"
	EventAutoRecovery           EventType = "AUTO_RECOVERY"
)

// Event is one auditable occurrence. Payload is the serialized form of the
// decision that caused it.
type Event struct {
	Type    EventType `json:"event_type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// StabilityWarning is the payload of STABILITY_WARNING events.
type StabilityWarning struct {
	SafetyMode        SafetyMode `json:"safety_mode,omitempty"`
	Type              string     `json:"type,omitempty"`
	ReferenceCoreHash string     `json:"reference_core_hash,omitempty"`
	CurrentCoreHash   string     `json:"current_core_hash,omitempty"`
}

// WarningExternalReferenceMismatch marks a core anchor that disagrees with the
// operator-supplied reference hash.
const WarningExternalReferenceMismatch = "external_reference_mismatch"

// #endregion events

// #region snapshot

// AttractorPosition is where the live state sits relative to the anchors.
type AttractorPosition struct {
	DistToCore   float64 `json:"dist_to_core"`
	DistToMiddle float64 `json:"dist_to_middle"`
}

// IdentitySnapshot is the hashed per-turn summary kept for replay and audit.
type IdentitySnapshot struct {
	Timestamp          time.Time         `json:"timestamp"`
	IdentityID         string            `json:"identity_id"`
	IdentityPhase      temporal.Phase    `json:"identity_phase"`
	AttractorPosition  AttractorPosition `json:"attractor_position"`
	CoreHash           string            `json:"core_hash"`
	ValueVectorHash    string            `json:"value_vector_hash"`
	NarrativeStateHash string            `json:"narrative_state_hash"`
	SubjectivityMode   subjectivity.Mode `json:"subjectivity_mode"`
	StabilityBudget    float64           `json:"stability_budget"`
}

// #endregion snapshot

// #region input

// Input is everything the turn controller gathered for one turn.
type Input struct {
	At                         time.Time              `json:"at"`
	TraceID                    string                 `json:"trace_id,omitempty"`
	Scores                     subjectivity.Scores    `json:"scores"`
	Continuity                 signals.ContinuityMeta `json:"continuity"`
	Narrative                  signals.NarrativeMeta  `json:"narrative"`
	Value                      signals.ValueMeta      `json:"value_meta"`
	Self                       signals.SelfMeta       `json:"self_meta"`
	DriftMagnitude             float64                `json:"drift_magnitude"`
	ContradictionPressure      *float64               `json:"contradiction_pressure,omitempty"` // nil derives it from open contradictions
	ExternalOverwriteSuspected bool                   `json:"external_overwrite_suspected"`
	TriggerReconstruction      bool                   `json:"trigger_reconstruction"`
	OperatorSubjectivityMode   string                 `json:"operator_subjectivity_mode,omitempty"`
	Values                     map[string]float64     `json:"values,omitempty"`
	Traits                     map[string]float64     `json:"traits,omitempty"`
	Ego                        map[string]any         `json:"ego,omitempty"`
}

// Memory bundles the per-session engine memories the controller threads
// between turns.
type Memory struct {
	Failure      failure.Memory      `json:"failure"`
	Subjectivity subjectivity.Memory `json:"subjectivity"`
}

// #endregion input

// #region result

// Result is the turn's final output.
type Result struct {
	Temporal      temporal.Telemetry    `json:"temporal_identity"`
	Subjectivity  subjectivity.Decision `json:"subjectivity"`
	Failure       failure.Assessment    `json:"failure"`
	Snapshot      IdentitySnapshot      `json:"identity_snapshot"`
	Events        []Event               `json:"events"`
	FreezeUpdates bool                  `json:"freeze_updates"`
	SafetyMode    SafetyMode            `json:"safety_mode"`
	Arbitration   []string              `json:"arbitration"` // every rule that matched, in priority order
}

// #endregion result

// #region config

// Config holds integration options plus the engine configs it wires.
type Config struct {
	GuardedFreeze             bool                   `yaml:"guarded_freeze"`
	ExternalReferenceCoreHash string                 `yaml:"external_reference_core_hash"`
	Temporal                  temporal.Config        `yaml:"-"`
	Failure                   failure.Config         `yaml:"-"`
	Subjectivity              subjectivity.Config    `yaml:"-"`
	Signals                   signals.ProducerConfig `yaml:"-"`
}

// DefaultConfig returns defaults for every wired engine.
func DefaultConfig() Config {
	return Config{
		Temporal:     temporal.DefaultConfig(),
		Failure:      failure.DefaultConfig(),
		Subjectivity: subjectivity.DefaultConfig(),
		Signals:      signals.DefaultProducerConfig(),
	}
}

// #endregion config
