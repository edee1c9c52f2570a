package subjectivity

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// #region transitions

type transition struct {
	from  Mode
	to    Mode
	cross func(ema float64, c Config) bool
}

// transitions are tried in order against the current mode; at most one fires
// per evaluation. Upward moves use the enter thresholds and downward moves
// the lower exit thresholds, which leaves a dead band between them.
var transitions = []transition{
	{ModeTool, ModeProto, func(ema float64, c Config) bool { return ema > c.EnterProto }},
	{ModeProto, ModeFunctional, func(ema float64, c Config) bool { return ema > c.EnterFunctional }},
	{ModeFunctional, ModeProto, func(ema float64, c Config) bool { return ema < c.ExitFunctional }},
	{ModeProto, ModeTool, func(ema float64, c Config) bool { return ema < c.ExitProto }},
}

// #endregion transitions

// #region controller

// Controller is the hysteretic subjectivity mode machine. Memory is passed in
// and returned so one Controller can serve any number of sessions.
type Controller struct {
	config Config
}

// NewController creates a controller. Threshold pairs that would invert the
// hysteresis band are reset to their defaults.
func NewController(config Config) *Controller {
	def := DefaultConfig()
	if config.EMAAlpha <= 0 || config.EMAAlpha > 0.6 {
		config.EMAAlpha = def.EMAAlpha
	}
	if config.EnterProto < config.ExitProto {
		config.EnterProto, config.ExitProto = def.EnterProto, def.ExitProto
	}
	if config.EnterFunctional < config.ExitFunctional {
		config.EnterFunctional, config.ExitFunctional = def.EnterFunctional, def.ExitFunctional
	}
	if !config.InitialMode.Valid() {
		config.InitialMode = def.InitialMode
	}
	return &Controller{config: config}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Evaluate blends the scores, applies emergency overrides and hysteresis, and
// returns the decision plus the next memory.
func (c *Controller) Evaluate(mem Memory, in Input) (Decision, Memory) {
	cfg := c.config
	now := in.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	prev := mem.Mode
	if !prev.Valid() {
		prev = cfg.InitialMode
	}

	f := blend(in.Scores, cfg.Weights)
	ema := clamp01(mem.FEMA*(1-cfg.EMAAlpha) + f*cfg.EMAAlpha)

	var reasons []string
	emergency := false
	if in.ExternalOverwriteSuspected {
		emergency = true
		reasons = append(reasons, "external_overwrite_suspected")
	}
	if in.NarrativeCollapseSuspected {
		emergency = true
		reasons = append(reasons, "narrative_collapse_suspected")
	}
	if in.SelfModelFragmentationSuspected {
		emergency = true
		reasons = append(reasons, "self_model_fragmentation_suspected")
	}
	if t := in.Temporal; t != nil && t.StabilityBudget <= t.BudgetMinSafe {
		emergency = true
		reasons = append(reasons, "stability_budget_low")
	}
	if in.FailureLevel != nil && *in.FailureLevel >= 3 {
		emergency = true
		reasons = append(reasons, fmt.Sprintf("failure_level=%d>=3", *in.FailureLevel))
	}

	forced := mem.Forced
	if in.ForcedMode != "" {
		m, reset, ok := ParseForcedMode(in.ForcedMode)
		switch {
		case reset:
			forced = ""
		case ok:
			forced = m
		default:
			reasons = append(reasons, "forced_mode_ignored="+in.ForcedMode)
		}
	}

	next := prev
	switch {
	case forced == ModeSafe:
		next = ModeSafe
		emergency = true
		reasons = append(reasons, "forced_mode="+string(forced))
	case emergency:
		next = ModeSafe
	case forced != "":
		next = forced
		reasons = append(reasons, "forced_mode="+string(forced))
	default:
		for _, t := range transitions {
			if t.from == prev && t.cross(ema, cfg) {
				next = t.to
				break
			}
		}
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "normal_evaluation")
	}

	var event *Event
	if next != prev {
		event = &Event{
			EventID:    uuid.New().String(),
			At:         now,
			FromMode:   prev,
			ToMode:     next,
			Confidence: clamp01(0.55 + 0.40*math.Abs(ema-f)),
			CausalTrace: CausalTrace{
				TraceID: in.TraceID,
				FScore:  f,
				FEMA:    ema,
				Scores:  in.Scores,
				Reasons: append([]string(nil), reasons...),
			},
		}
	}

	confidence := clamp01(0.15 + 0.80*ema)
	if emergency {
		confidence = math.Min(confidence, 0.55)
	}

	d := Decision{
		Mode:        next,
		Confidence:  confidence,
		FScore:      f,
		FEMA:        ema,
		PSubjective: clamp01(sigmoid((ema - 0.55) * 8)),
		Emergency:   emergency,
		Forced:      forced,
		Reasons:     reasons,
		Event:       event,
	}
	return d, Memory{Mode: next, FEMA: ema, Forced: forced}
}

// #endregion controller

// #region helpers

func blend(s, w Scores) float64 {
	return clamp01(w.C*clamp01(s.C) + w.N*clamp01(s.N) + w.M*clamp01(s.M) + w.S*clamp01(s.S) + w.R*clamp01(s.R))
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// #endregion helpers
