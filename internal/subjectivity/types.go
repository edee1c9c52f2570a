package subjectivity

import (
	"strings"
	"time"
)

// #region mode
// Mode is a functional operating-autonomy label. It makes no claim about
// experience.
type Mode string

const (
	ModeTool       Mode = "S0_TOOL"
	ModeProto      Mode = "S1_PROTO"
	ModeFunctional Mode = "S2_FUNCTIONAL"
	ModeSafe       Mode = "S3_SAFE"
)

// Valid reports whether m is one of the four declared modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeTool, ModeProto, ModeFunctional, ModeSafe:
		return true
	}
	return false
}

var modeAliases = map[string]Mode{
	"S0": ModeTool,
	"S1": ModeProto,
	"S2": ModeFunctional,
	"S3": ModeSafe,
}

// ParseForcedMode interprets an operator override. reset is true for
// AUTO/NONE/NULL. ok is false when raw names no known mode.
func ParseForcedMode(raw string) (mode Mode, reset bool, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "":
		return "", false, false
	case "AUTO", "NONE", "NULL":
		return "", true, true
	}
	if m, found := modeAliases[s]; found {
		return m, false, true
	}
	if m := Mode(s); m.Valid() {
		return m, false, true
	}
	return "", false, false
}

// #endregion mode

// #region scores
// Scores are the five externally computed 0..1 telemetry channels.
type Scores struct {
	C float64 `json:"C" yaml:"c"`
	N float64 `json:"N" yaml:"n"`
	M float64 `json:"M" yaml:"m"`
	S float64 `json:"S" yaml:"s"`
	R float64 `json:"R" yaml:"r"`
}

// #endregion scores

// #region input
// TemporalSnapshot is the slice of temporal telemetry the controller reads.
type TemporalSnapshot struct {
	StabilityBudget float64
	BudgetMinSafe   float64
}

// Input is one evaluation request. Nil pointers mean "not available".
type Input struct {
	At                              time.Time // zero means time.Now()
	TraceID                         string
	Scores                          Scores
	Temporal                        *TemporalSnapshot
	FailureLevel                    *int
	ExternalOverwriteSuspected      bool
	NarrativeCollapseSuspected      bool
	SelfModelFragmentationSuspected bool
	ForcedMode                      string // "" leaves any existing override; AUTO clears it
}

// #endregion input

// #region output
// CausalTrace is the score snapshot behind a mode transition.
type CausalTrace struct {
	TraceID string   `json:"trace_id,omitempty"`
	FScore  float64  `json:"f_score"`
	FEMA    float64  `json:"f_ema"`
	Scores  Scores   `json:"scores"`
	Reasons []string `json:"reasons"`
}

// Event is emitted only when the mode actually changes.
type Event struct {
	EventID     string      `json:"event_id"`
	At          time.Time   `json:"at"`
	FromMode    Mode        `json:"from_mode"`
	ToMode      Mode        `json:"to_mode"`
	Confidence  float64     `json:"confidence"`
	CausalTrace CausalTrace `json:"causal_trace"`
}

// Decision is the controller's per-turn output.
type Decision struct {
	Mode        Mode     `json:"mode"`
	Confidence  float64  `json:"confidence"`
	FScore      float64  `json:"f_score"`
	FEMA        float64  `json:"f_ema"`
	PSubjective float64  `json:"p_subjective"`
	Emergency   bool     `json:"emergency"`
	Forced      Mode     `json:"forced,omitempty"`
	Reasons     []string `json:"reasons"`
	Event       *Event   `json:"event,omitempty"`
}

// Memory is the per-session controller state. The zero value starts at the
// configured initial mode with an empty EMA.
type Memory struct {
	Mode   Mode    `json:"mode,omitempty"`
	FEMA   float64 `json:"f_ema"`
	Forced Mode    `json:"forced,omitempty"`
}

// #endregion output

// #region config
// Config holds weights and thresholds. Each enter threshold must be at or
// above its exit threshold.
type Config struct {
	EMAAlpha        float64 `yaml:"ema_alpha"`
	EnterProto      float64 `yaml:"enter_proto"`      // S0 -> S1
	EnterFunctional float64 `yaml:"enter_functional"` // S1 -> S2
	ExitFunctional  float64 `yaml:"exit_functional"`  // S2 -> S1
	ExitProto       float64 `yaml:"exit_proto"`       // S1 -> S0
	Weights         Scores  `yaml:"weights"`
	InitialMode     Mode    `yaml:"initial_mode"`
}

// DefaultConfig returns the engineering defaults.
func DefaultConfig() Config {
	return Config{
		EMAAlpha:        0.16,
		EnterProto:      0.45,
		EnterFunctional: 0.65,
		ExitFunctional:  0.55,
		ExitProto:       0.35,
		Weights:         Scores{C: 0.22, N: 0.22, M: 0.20, S: 0.20, R: 0.16},
		InitialMode:     ModeTool,
	}
}

// #endregion config
