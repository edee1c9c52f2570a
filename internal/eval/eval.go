package eval

import (
	"fmt"

	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
)

// #region harness
// Harness verifies a processed turn before it is committed.
type Harness struct {
	config Config
}

// NewHarness creates a harness with the given configuration.
func NewHarness(config Config) *Harness {
	return &Harness{config: config}
}

// Run checks bounded fields, declared names, and core anchor stability.
func (h *Harness) Run(s Subject) Result {
	var checks []Check
	var failReasons []string
	add := func(name string, value float64, pass bool, reason string) {
		checks = append(checks, Check{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}
	flag := func(ok bool) float64 {
		if ok {
			return 1
		}
		return 0
	}

	if s.Next == nil {
		return Result{Passed: false, Reason: "eval failed: no state to verify"}
	}
	next := s.Next
	res := s.Integration

	// 1. temporal bounds
	add("stability_budget", next.StabilityBudget, h.within(next.StabilityBudget, 0, next.BudgetMax),
		fmt.Sprintf("stability budget %.4f outside [0, %.4f]", next.StabilityBudget, next.BudgetMax))
	add("inertia", next.Inertia, h.unit(next.Inertia),
		fmt.Sprintf("inertia %.4f outside [0, 1]", next.Inertia))
	add("continuity_confidence", next.ContinuityConfidence, h.unit(next.ContinuityConfidence),
		fmt.Sprintf("continuity confidence %.4f outside [0, 1]", next.ContinuityConfidence))
	add("phase_valid", flag(next.Phase.Valid()), next.Phase.Valid(),
		fmt.Sprintf("unknown phase %q", next.Phase))

	// 2. failure bounds
	f := res.Failure
	add("failure_level", float64(f.Level), f.Level >= 0 && f.Level <= h.config.MaxFailureLevel,
		fmt.Sprintf("failure level %d outside [0, %d]", f.Level, h.config.MaxFailureLevel))
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"health_score", f.HealthScore},
		{"collapse_risk_score", f.CollapseRiskScore},
		{"subjectivity_confidence", res.Subjectivity.Confidence},
		{"subjectivity_f_ema", res.Subjectivity.FEMA},
		{"p_subjective", res.Subjectivity.PSubjective},
	} {
		add(v.name, v.value, h.unit(v.value), fmt.Sprintf("%s %.4f outside [0, 1]", v.name, v.value))
	}

	// 3. names
	mode := res.Subjectivity.Mode
	add("mode_valid", flag(mode.Valid()), mode.Valid(), fmt.Sprintf("unknown subjectivity mode %q", mode))
	add("safety_mode_valid", flag(res.SafetyMode.Valid()), res.SafetyMode.Valid(),
		fmt.Sprintf("unknown safety mode %q", res.SafetyMode))
	add("guardrail_mode_valid", flag(s.Guardrail.Mode.Valid()), s.Guardrail.Mode.Valid(),
		fmt.Sprintf("unknown guardrail mode %q", s.Guardrail.Mode))

	// 4. arbitration consistency
	safeHeld := res.SafetyMode != integration.SafetySafe ||
		(res.FreezeUpdates && s.Guardrail.Mode == guardrail.ModeSafe)
	add("safe_mode_enforced", flag(safeHeld), safeHeld, "SAFE arbitration not carried into freeze and guardrail")

	// 5. core anchor never moves for an existing identity
	if prev := s.Prev; prev != nil && prev.Attractor.CoreHash != "" {
		same := prev.Attractor.CoreHash == next.Attractor.CoreHash && prev.IdentityID == next.IdentityID
		add("core_hash_unchanged", flag(same), same, "core anchor hash changed")
	}

	passed := len(failReasons) == 0
	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}
	return Result{Passed: passed, Checks: checks, Reason: reason}
}

// #endregion harness

// #region helpers
func (h *Harness) within(x, lo, hi float64) bool {
	return x >= lo-h.config.Epsilon && x <= hi+h.config.Epsilon
}

func (h *Harness) unit(x float64) bool {
	return h.within(x, 0, 1)
}

// #endregion helpers
