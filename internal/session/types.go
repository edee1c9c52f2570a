package session

import (
	"errors"

	"github.com/danielpatrickdp/continuity-arbiter/internal/eval"
	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/recovery"
	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

// ErrInvalidInput marks requests rejected before any engine runs.
var ErrInvalidInput = errors.New("invalid input")

// TurnInput is one turn's request: the integration input plus the telemetry
// only the guardrail reads.
type TurnInput struct {
	integration.Input
	Telemetry *signals.TelemetryMeta `json:"telemetry,omitempty"`
}

// TurnOutcome is everything a turn decided. Committed is false when
// verification failed; the previous version then stays active.
type TurnOutcome struct {
	SessionID     string                        `json:"session_id"`
	ParentID      string                        `json:"parent_id,omitempty"`
	VersionID     string                        `json:"version_id,omitempty"`
	Committed     bool                          `json:"committed"`
	Result        integration.Result            `json:"result"`
	Guardrail     guardrail.Decision            `json:"guardrail"`
	Recovery      recovery.Advice               `json:"recovery"`
	Verification  eval.Result                   `json:"verification"`
	AllowedDeltas map[temporal.Category]float64 `json:"allowed_deltas"`
}

// Config bundles the engine configs the service wires.
type Config struct {
	Integration integration.Config
	Guardrail   guardrail.Config
	Recovery    recovery.Config
	Eval        eval.Config
}

// DefaultConfig returns defaults for every engine.
func DefaultConfig() Config {
	return Config{
		Integration: integration.DefaultConfig(),
		Guardrail:   guardrail.DefaultConfig(),
		Recovery:    recovery.DefaultConfig(),
		Eval:        eval.DefaultConfig(),
	}
}
