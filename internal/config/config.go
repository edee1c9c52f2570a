// Package config loads the arbiter's tunables from defaults, an optional YAML
// file and ARBITER_ environment overrides.
package config

import (
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/eval"
	"github.com/danielpatrickdp/continuity-arbiter/internal/failure"
	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/recovery"
	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/subjectivity"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

// #region config

// Config is the full configuration, one section per engine plus the
// process-level store, server and log sections.
type Config struct {
	Temporal     temporal.Config        `yaml:"temporal"`
	Signals      signals.ProducerConfig `yaml:"signals"`
	Failure      failure.Config         `yaml:"failure"`
	Subjectivity subjectivity.Config    `yaml:"subjectivity"`
	Guardrail    guardrail.Config       `yaml:"guardrail"`
	Integration  integration.Config     `yaml:"integration"`
	Recovery     recovery.Config        `yaml:"recovery"`
	Eval         eval.Config            `yaml:"eval"`
	Store        StoreConfig            `yaml:"store"`
	Server       ServerConfig           `yaml:"server"`
	Log          LogConfig              `yaml:"log"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultStoreConfig returns the store defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Path: "arbiter.db"}
}

// DefaultServerConfig returns the server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Addr: "127.0.0.1:50061", ShutdownTimeout: 10 * time.Second}
}

// DefaultLogConfig returns the log defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info"}
}

// Default returns the compiled defaults for every section.
func Default() Config {
	return Config{
		Temporal:     temporal.DefaultConfig(),
		Signals:      signals.DefaultProducerConfig(),
		Failure:      failure.DefaultConfig(),
		Subjectivity: subjectivity.DefaultConfig(),
		Guardrail:    guardrail.DefaultConfig(),
		Integration:  integration.DefaultConfig(),
		Recovery:     recovery.DefaultConfig(),
		Eval:         eval.DefaultConfig(),
		Store:        DefaultStoreConfig(),
		Server:       DefaultServerConfig(),
		Log:          DefaultLogConfig(),
	}
}

// #endregion config

// #region builders

// IntegrationConfig wires the engine sections into the integration config.
func (c Config) IntegrationConfig() integration.Config {
	ic := c.Integration
	ic.Temporal = c.Temporal
	ic.Failure = c.Failure
	ic.Subjectivity = c.Subjectivity
	ic.Signals = c.Signals
	return ic
}

// SessionConfig returns the config the session service is built from.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		Integration: c.IntegrationConfig(),
		Guardrail:   c.Guardrail,
		Recovery:    c.Recovery,
		Eval:        c.Eval,
	}
}

// #endregion builders

// #region sanitize

// Sanitize pulls every tunable back into its valid range. Out-of-range values
// are clamped where a bound exists and otherwise revert to the default.
func (c *Config) Sanitize() {
	def := Default()

	t := &c.Temporal
	t.ContinuityEMAAlpha = clampAlpha(t.ContinuityEMAAlpha, 0.6, def.Temporal.ContinuityEMAAlpha)
	t.MiddleAnchorAlpha = clampAlpha(t.MiddleAnchorAlpha, 0.25, def.Temporal.MiddleAnchorAlpha)
	if t.ShockHalfLife < 10*time.Minute {
		t.ShockHalfLife = 10 * time.Minute
	}
	if t.BudgetMax <= 0 {
		t.BudgetMax = def.Temporal.BudgetMax
	}
	if t.BudgetMinSafe < 0 || t.BudgetMinSafe >= t.BudgetMax {
		t.BudgetMinSafe = def.Temporal.BudgetMinSafe
	}
	if t.PhaseHistoryCap <= 0 {
		t.PhaseHistoryCap = def.Temporal.PhaseHistoryCap
	}
	nonNegative(&t.Plasticity.RecoveryRate, def.Temporal.Plasticity.RecoveryRate)
	nonNegative(&t.Plasticity.IrreversibleCostRate, def.Temporal.Plasticity.IrreversibleCostRate)

	s := &c.Subjectivity
	s.EMAAlpha = clampAlpha(s.EMAAlpha, 0.6, def.Subjectivity.EMAAlpha)
	if s.EnterProto < s.ExitProto {
		s.EnterProto, s.ExitProto = def.Subjectivity.EnterProto, def.Subjectivity.ExitProto
	}
	if s.EnterFunctional < s.ExitFunctional {
		s.EnterFunctional, s.ExitFunctional = def.Subjectivity.EnterFunctional, def.Subjectivity.ExitFunctional
	}
	if !s.InitialMode.Valid() {
		s.InitialMode = def.Subjectivity.InitialMode
	}
	nonNegative(&s.Weights.C, def.Subjectivity.Weights.C)
	nonNegative(&s.Weights.N, def.Subjectivity.Weights.N)
	nonNegative(&s.Weights.M, def.Subjectivity.Weights.M)
	nonNegative(&s.Weights.S, def.Subjectivity.Weights.S)
	nonNegative(&s.Weights.R, def.Subjectivity.Weights.R)

	f := &c.Failure
	nonNegative(&f.WeightContinuity, def.Failure.WeightContinuity)
	nonNegative(&f.WeightNarrative, def.Failure.WeightNarrative)
	nonNegative(&f.WeightValue, def.Failure.WeightValue)
	nonNegative(&f.WeightSelf, def.Failure.WeightSelf)
	if f.ContradictionOpenLimit < 1 {
		f.ContradictionOpenLimit = def.Failure.ContradictionOpenLimit
	}
	if !(f.NarrativeEntropyHigh > 0) {
		f.NarrativeEntropyHigh = def.Failure.NarrativeEntropyHigh
	}

	// The failure section owns the thresholds other engines share.
	c.Signals.ContradictionOpenLimit = f.ContradictionOpenLimit
	c.Temporal.NarrativeEntropyHigh = f.NarrativeEntropyHigh

	g := &c.Guardrail
	g.ContradictionOpenLimit = f.ContradictionOpenLimit
	if g.StagnationWindow <= 0 {
		g.StagnationWindow = def.Guardrail.StagnationWindow
	}
	nonNegative(&g.StagnationEpsilon, def.Guardrail.StagnationEpsilon)

	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
}

// clampAlpha treats NaN like a non-positive value.
func clampAlpha(v, upper, def float64) float64 {
	if !(v > 0) {
		return def
	}
	if v > upper {
		return upper
	}
	return v
}

func nonNegative(v *float64, def float64) {
	if !(*v >= 0) {
		*v = def
	}
}

// #endregion sanitize
