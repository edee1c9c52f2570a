package eval

import (
	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

// #region config
// Config holds verification tolerances.
type Config struct {
	MaxFailureLevel int     `yaml:"max_failure_level"`
	Epsilon         float64 `yaml:"epsilon"` // slack on range checks
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailureLevel: 4,
		Epsilon:         1e-9,
	}
}

// #endregion config

// #region subject
// Subject is one processed turn awaiting commit. Prev is nil for a new identity.
type Subject struct {
	Prev        *temporal.State
	Next        *temporal.State
	Integration integration.Result
	Guardrail   guardrail.Decision
}

// #endregion subject

// #region check
// Check captures a single verification result.
type Check struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion check

// #region result
// Result is the verdict on a turn. A failed result blocks the commit.
type Result struct {
	Passed bool    `json:"passed"`
	Checks []Check `json:"checks"`
	Reason string  `json:"reason"`
}

// Failed returns the names of failing checks.
func (r Result) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.Pass {
			out = append(out, c.Name)
		}
	}
	return out
}

// #endregion result
