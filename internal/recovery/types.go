package recovery

import "github.com/danielpatrickdp/continuity-arbiter/internal/failure"

// #region dialogue-state

// DialogueState is the conversational stance recovery forces on the prompt
// layer. Empty means no override.
type DialogueState string

const (
	DialogueNone   DialogueState = ""
	DialogueMeta   DialogueState = "S4_META"
	DialogueSafety DialogueState = "S6_SAFETY"
)

// #endregion dialogue-state

// #region trigger

// TriggerType names why recovery engaged.
type TriggerType string

const (
	TriggerFailureLevel TriggerType = "failure_level"
	TriggerCollapseRisk TriggerType = "collapse_risk"
	TriggerOverwrite    TriggerType = "external_overwrite"
	TriggerWorsened     TriggerType = "worsened"
)

// Trigger is one condition that engaged recovery.
type Trigger struct {
	Type   TriggerType `json:"type"`
	Reason string      `json:"reason"`
}

// #endregion trigger

// #region observation

// Observation is the slice of a failure assessment recovery compares across turns.
type Observation struct {
	Level             int     `json:"level"`
	HealthScore       float64 `json:"health_score"`
	CollapseRiskScore float64 `json:"collapse_risk_score"`
	Overwrite         bool    `json:"external_overwrite_suspected"`
}

// Observe extracts the comparable fields from an assessment.
func Observe(a failure.Assessment) Observation {
	return Observation{
		Level:             a.Level,
		HealthScore:       a.HealthScore,
		CollapseRiskScore: a.CollapseRiskScore,
		Overwrite:         a.Flags.ExternalOverwriteSuspected,
	}
}

// #endregion observation

// #region advice

// Advice is the per-turn recovery recommendation.
type Advice struct {
	Active              bool          `json:"active"`
	ForcedDialogueState DialogueState `json:"forced_dialogue_state"`
	StopMemoryInjection bool          `json:"stop_memory_injection"`
	Worsened            bool          `json:"worsened"`
	Observed            Observation   `json:"observed"`
	Previous            *Observation  `json:"previous,omitempty"`
	Triggers            []Trigger     `json:"triggers,omitempty"`
}

// Memory holds the previous observation for a session.
type Memory struct {
	Last *Observation `json:"last,omitempty"`
}

// #endregion advice

// #region config

// Config holds recovery thresholds.
type Config struct {
	SafetyLevel        int     `yaml:"safety_level"`
	SafetyCollapse     float64 `yaml:"safety_collapse"`
	MetaLevel          int     `yaml:"meta_level"`
	WorsenCollapse     float64 `yaml:"worsen_collapse"` // collapse rise that counts as worsening
	WorsenHealth       float64 `yaml:"worsen_health"`   // health drop that counts as worsening
	StopInjectionLevel int     `yaml:"stop_injection_level"`
}

// DefaultConfig returns the engineering defaults.
func DefaultConfig() Config {
	return Config{
		SafetyLevel:        3,
		SafetyCollapse:     0.70,
		MetaLevel:          2,
		WorsenCollapse:     0.12,
		WorsenHealth:       0.10,
		StopInjectionLevel: 3,
	}
}

// #endregion config
