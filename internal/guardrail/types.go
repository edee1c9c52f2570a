package guardrail

import (
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

// #region modes

// Mode is the guardrail operating mode handed to the prompt layer.
type Mode string

const (
	ModeNormal              Mode = "NORMAL"
	ModeContinuityRisk      Mode = "CONTINUITY_RISK"
	ModeIdentityReconstruct Mode = "IDENTITY_RECONSTRUCT"
	ModeOperatorRequired    Mode = "OPERATOR_REQUIRED"
	ModeSafe                Mode = "SAFE_MODE"
)

// Valid reports whether m is a declared guardrail mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeNormal, ModeContinuityRisk, ModeIdentityReconstruct, ModeOperatorRequired, ModeSafe:
		return true
	}
	return false
}

// Transparency is "normal" or "high".
type Transparency string

const (
	TransparencyNormal Transparency = "normal"
	TransparencyHigh   Transparency = "high"
)

// #endregion modes

// #region input

// Hint is the integration controller's arbitration, forwarded as advice.
type Hint struct {
	FreezeUpdates bool   `json:"freeze_updates"`
	SafetyMode    string `json:"safety_mode"`
}

// Input is one decision request. Nil records are treated as absent.
type Input struct {
	At                 time.Time // zero means time.Now()
	Telemetry          *signals.TelemetryMeta
	Continuity         *signals.ContinuityMeta
	Narrative          *signals.NarrativeMeta
	OpenContradictions int // self-model count; the larger of this and the narrative list wins
	Integrity          temporal.IntegrityFlags
	Hint               *Hint
}

// #endregion input

// #region output

// Flags records which detectors fired this turn.
type Flags struct {
	TelemetryBlindSuspected bool `json:"telemetry_blind_suspected"`
	AttachmentRiskHigh      bool `json:"attachment_risk_high"`
	ContradictionHigh       bool `json:"contradiction_high"`
	ContinuityLow           bool `json:"continuity_low"`
	SchemaMismatch          bool `json:"schema_mismatch"`
	IntegrationFreeze       bool `json:"integration_freeze"`
}

// Decision is the policy handed to prompt construction.
type Decision struct {
	Mode              Mode         `json:"mode"`
	FreezeUpdates     bool         `json:"freeze_updates"`
	Transparency      Transparency `json:"transparency"`
	InformationalTone bool         `json:"informational_tone"`
	Disclosures       []string     `json:"disclosures"`
	SystemRules       []string     `json:"system_rules"`
	Flags             Flags        `json:"flags"`
}

// Memory is the per-session stagnation reference: the telemetry vector last
// seen moving and when.
type Memory struct {
	RefEMA map[string]float64 `json:"ref_ema,omitempty"`
	RefAt  time.Time          `json:"ref_at"`
}

// #endregion output

// #region config

// Config holds guardrail thresholds and output caps.
type Config struct {
	ContinuityLowThreshold  float64       `yaml:"continuity_low_threshold"`
	ContradictionOpenLimit  int           `yaml:"-"` // mirrors failure.contradiction_open_limit
	StagnationEpsilon       float64       `yaml:"stagnation_epsilon"`
	StagnationWindow        time.Duration `yaml:"stagnation_window"`
	AttachmentRiskThreshold float64       `yaml:"attachment_risk_threshold"`
	MaxDisclosures          int           `yaml:"max_disclosures"`
	MaxRules                int           `yaml:"max_rules"`
	MaxItemLen              int           `yaml:"max_item_len"` // runes per disclosure or rule
}

// DefaultConfig returns the engineering defaults.
func DefaultConfig() Config {
	return Config{
		ContinuityLowThreshold:  0.40,
		ContradictionOpenLimit:  6,
		StagnationEpsilon:       0.0005,
		StagnationWindow:        120 * time.Second,
		AttachmentRiskThreshold: 0.78,
		MaxDisclosures:          6,
		MaxRules:                8,
		MaxItemLen:              240,
	}
}

// #endregion config
