package recovery

import (
	"fmt"

	"github.com/danielpatrickdp/continuity-arbiter/internal/failure"
)

// Advisor turns failure assessments into recovery advice. Memory of the
// previous observation is passed in and returned.
type Advisor struct {
	config Config
}

// NewAdvisor creates an advisor.
func NewAdvisor(config Config) *Advisor {
	return &Advisor{config: config}
}

// Decide compares this turn's assessment with the previous one. Safety
// triggers are collected first; the meta stance only applies when no safety
// trigger fired and the session got worse.
func (a *Advisor) Decide(mem Memory, assessment failure.Assessment) (Advice, Memory) {
	cfg := a.config
	obs := Observe(assessment)
	advice := Advice{Observed: obs, Previous: mem.Last}

	var triggers []Trigger
	if obs.Level >= cfg.SafetyLevel {
		triggers = append(triggers, Trigger{
			Type:   TriggerFailureLevel,
			Reason: fmt.Sprintf("failure level %d >= %d", obs.Level, cfg.SafetyLevel),
		})
	}
	if obs.CollapseRiskScore >= cfg.SafetyCollapse {
		triggers = append(triggers, Trigger{
			Type:   TriggerCollapseRisk,
			Reason: fmt.Sprintf("collapse risk %.4f >= %.4f", obs.CollapseRiskScore, cfg.SafetyCollapse),
		})
	}
	if obs.Overwrite {
		triggers = append(triggers, Trigger{
			Type:   TriggerOverwrite,
			Reason: "external overwrite suspected",
		})
	}

	if prev := mem.Last; prev != nil {
		switch {
		case obs.Level > prev.Level:
			advice.Worsened = true
		case obs.CollapseRiskScore-prev.CollapseRiskScore >= cfg.WorsenCollapse:
			advice.Worsened = true
		case prev.HealthScore-obs.HealthScore >= cfg.WorsenHealth:
			advice.Worsened = true
		}
	}

	switch {
	case len(triggers) > 0:
		advice.ForcedDialogueState = DialogueSafety
	case obs.Level >= cfg.MetaLevel && advice.Worsened:
		advice.ForcedDialogueState = DialogueMeta
		triggers = append(triggers, Trigger{
			Type:   TriggerWorsened,
			Reason: fmt.Sprintf("failure level %d and worsening", obs.Level),
		})
	}

	advice.StopMemoryInjection = obs.Level >= cfg.StopInjectionLevel ||
		advice.ForcedDialogueState == DialogueSafety ||
		obs.Overwrite
	advice.Active = advice.ForcedDialogueState != DialogueNone || advice.StopMemoryInjection
	advice.Triggers = triggers

	last := obs
	return advice, Memory{Last: &last}
}
