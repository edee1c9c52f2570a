package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/subjectivity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbiter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, rejected, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
subjectivity:
  ema_alpha: 0.3
  weights:
    r: 0.5
temporal:
  shock_half_life: 2h
  plasticity:
    recovery_rate: 0.2
integration:
  guarded_freeze: true
log:
  level: debug
`)
	t.Setenv("ARBITER_SUBJECTIVITY_EMA_ALPHA", "0.2")
	t.Setenv("ARBITER_FAILURE_CONTRADICTION_OPEN_LIMIT", "9")

	cfg, rejected, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	assert.Equal(t, 0.2, cfg.Subjectivity.EMAAlpha, "env should win over the file")
	assert.Equal(t, 0.5, cfg.Subjectivity.Weights.R)
	assert.Equal(t, 2*time.Hour, cfg.Temporal.ShockHalfLife)
	assert.Equal(t, 0.2, cfg.Temporal.Plasticity.RecoveryRate)
	assert.True(t, cfg.Integration.GuardedFreeze)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9, cfg.Failure.ContradictionOpenLimit)

	def := Default()
	assert.Equal(t, def.Subjectivity.Weights.C, cfg.Subjectivity.Weights.C)
	assert.Equal(t, def.Guardrail.StagnationWindow, cfg.Guardrail.StagnationWindow)
}

func TestLoadUnparsableKeepsDefault(t *testing.T) {
	t.Setenv("ARBITER_SUBJECTIVITY_ENTER_PROTO", "high")
	t.Setenv("ARBITER_GUARDRAIL_STAGNATION_WINDOW", "soon")
	t.Setenv("ARBITER_TEMPORAL_BUDGET_MIN_SAFE", "0.3")

	cfg, rejected, err := Load("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"subjectivity.enter_proto", "guardrail.stagnation_window"}, rejected)

	def := Default()
	assert.Equal(t, def.Subjectivity.EnterProto, cfg.Subjectivity.EnterProto)
	assert.Equal(t, def.Guardrail.StagnationWindow, cfg.Guardrail.StagnationWindow)
	assert.Equal(t, 0.3, cfg.Temporal.BudgetMinSafe)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Temporal.ContinuityEMAAlpha = 0.9
	cfg.Temporal.MiddleAnchorAlpha = -1
	cfg.Temporal.ShockHalfLife = time.Minute
	cfg.Subjectivity.EMAAlpha = 0
	cfg.Subjectivity.EnterFunctional = 0.4
	cfg.Subjectivity.ExitFunctional = 0.5
	cfg.Subjectivity.Weights.M = -0.1
	cfg.Subjectivity.InitialMode = "S9"
	cfg.Failure.WeightSelf = -1
	cfg.Guardrail.ContradictionOpenLimit = 0
	cfg.Sanitize()

	def := Default()
	assert.Equal(t, 0.6, cfg.Temporal.ContinuityEMAAlpha)
	assert.Equal(t, def.Temporal.MiddleAnchorAlpha, cfg.Temporal.MiddleAnchorAlpha)
	assert.Equal(t, 10*time.Minute, cfg.Temporal.ShockHalfLife)
	assert.Equal(t, def.Subjectivity.EMAAlpha, cfg.Subjectivity.EMAAlpha)
	assert.Equal(t, def.Subjectivity.EnterFunctional, cfg.Subjectivity.EnterFunctional)
	assert.Equal(t, def.Subjectivity.ExitFunctional, cfg.Subjectivity.ExitFunctional)
	assert.Equal(t, def.Subjectivity.Weights.M, cfg.Subjectivity.Weights.M)
	assert.Equal(t, subjectivity.ModeTool, cfg.Subjectivity.InitialMode)
	assert.Equal(t, def.Failure.WeightSelf, cfg.Failure.WeightSelf)
	assert.Equal(t, def.Guardrail.ContradictionOpenLimit, cfg.Guardrail.ContradictionOpenLimit)

	again := cfg
	again.Sanitize()
	assert.Equal(t, cfg, again, "sanitize should be idempotent")
}

func TestSharedThresholdsFollowFailure(t *testing.T) {
	t.Setenv("ARBITER_FAILURE_CONTRADICTION_OPEN_LIMIT", "9")
	t.Setenv("ARBITER_FAILURE_NARRATIVE_ENTROPY_HIGH", "0.7")

	cfg, rejected, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, rejected)

	assert.Equal(t, 9, cfg.Guardrail.ContradictionOpenLimit)
	assert.Equal(t, 9, cfg.Signals.ContradictionOpenLimit)
	assert.Equal(t, 0.7, cfg.Temporal.NarrativeEntropyHigh)

	sc := cfg.SessionConfig()
	assert.Equal(t, 9, sc.Integration.Failure.ContradictionOpenLimit)
	assert.Equal(t, 9, sc.Integration.Signals.ContradictionOpenLimit)
	assert.Equal(t, 9, sc.Guardrail.ContradictionOpenLimit)
	assert.Equal(t, 0.7, sc.Integration.Temporal.NarrativeEntropyHigh)
	assert.Equal(t, 0.7, sc.Integration.Failure.NarrativeEntropyHigh)

	keys := Keys()
	assert.Contains(t, keys, "failure.contradiction_open_limit")
	assert.NotContains(t, keys, "guardrail.contradiction_open_limit")
	assert.NotContains(t, keys, "signals.contradiction_open_limit")
	assert.NotContains(t, keys, "temporal.narrative_entropy_high")
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Subjectivity.EMAAlpha = 0.25
	cfg.Guardrail.StagnationWindow = 90 * time.Second
	cfg.Integration.ExternalReferenceCoreHash = "abc123"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "ema_alpha: 0.25")

	loaded, rejected, err := Load(writeFile(t, string(out)))
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Equal(t, cfg, loaded)
}

func TestSessionConfigWiresSections(t *testing.T) {
	cfg := Default()
	cfg.Temporal.BaseInertia = 0.5
	cfg.Subjectivity.EnterProto = 0.5
	cfg.Integration.GuardedFreeze = true
	cfg.Recovery.MetaLevel = 1

	sc := cfg.SessionConfig()
	assert.Equal(t, 0.5, sc.Integration.Temporal.BaseInertia)
	assert.Equal(t, 0.5, sc.Integration.Subjectivity.EnterProto)
	assert.True(t, sc.Integration.GuardedFreeze)
	assert.Equal(t, cfg.Signals, sc.Integration.Signals)
	assert.Equal(t, 1, sc.Recovery.MetaLevel)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "subjectivity.ema_alpha")
	assert.Contains(t, keys, "temporal.plasticity.recovery_rate")
	assert.Contains(t, keys, "integration.guarded_freeze")
	assert.NotContains(t, keys, "integration.temporal.base_inertia")
	assert.Equal(t, "ARBITER_SUBJECTIVITY_EMA_ALPHA", EnvName("subjectivity.ema_alpha"))
}
