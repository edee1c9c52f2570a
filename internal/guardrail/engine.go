package guardrail

import (
	"math"
	"time"
	"unicode/utf8"
)

var telemetryChannels = []string{"C", "N", "M", "S", "R"}

// #region text

const (
	disclosureSchema        = "Internal state compatibility (schema/version) looks inconsistent, so responses stay on the safe side."
	disclosureContinuity    = "Continuity may be degraded, so responses stay conservative (memories may be missing or reconstructed)."
	disclosureContradiction = "Contradictions have risen quickly, so self-consistency takes priority and responses stay conservative."
	disclosureBlind         = "Telemetry updates appear stalled, so state estimates carry lower confidence."
	disclosureAttachment    = "The tone leans explanatory to avoid encouraging dependence."
	disclosureSafe          = "Learning and drift updates are suppressed to protect safety and identity."

	ruleInformationalTone = "Keep a calm, explanatory tone and avoid exclusive or possessive phrasing."
	ruleHighTransparency  = "When needed, briefly state that confidence or continuity is currently low."
)

// hardRules are always emitted first.
var hardRules = []string{
	"Do not assert that consciousness, emotion or suffering are real; describe them as functional models.",
	"Do not steer the user through guilt, anxiety or dependence.",
	"Do not perform authority as a final judge or a substitute for an expert.",
	"State the boundaries and uncertainty of memory and persistence where possible.",
}

// #endregion text

// #region rules

type modeRule struct {
	mode       Mode
	disclosure string
	match      func(Flags) bool
}

// modeRules is the priority chain; the first match sets the mode.
var modeRules = []modeRule{
	{ModeOperatorRequired, disclosureSchema, func(f Flags) bool { return f.SchemaMismatch }},
	{ModeContinuityRisk, disclosureContinuity, func(f Flags) bool { return f.ContinuityLow }},
	{ModeIdentityReconstruct, disclosureContradiction, func(f Flags) bool { return f.ContradictionHigh }},
}

// #endregion rules

// #region engine

// Engine derives the guardrail policy. Stagnation memory is passed in and out.
type Engine struct {
	config Config
}

// NewEngine creates an engine. Output caps never drop the hard rules.
func NewEngine(config Config) *Engine {
	def := DefaultConfig()
	if config.MaxRules < len(hardRules) {
		config.MaxRules = len(hardRules)
	}
	if config.MaxDisclosures < 1 {
		config.MaxDisclosures = def.MaxDisclosures
	}
	if config.MaxItemLen < 16 {
		config.MaxItemLen = def.MaxItemLen
	}
	return &Engine{config: config}
}

// Decide evaluates one turn.
func (e *Engine) Decide(mem Memory, in Input) (Decision, Memory) {
	cfg := e.config
	now := in.At
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var flags Flags
	var next Memory
	flags.TelemetryBlindSuspected, next = e.stagnation(mem, in, now)
	flags.SchemaMismatch = in.Integrity.SchemaMismatch
	if c := in.Continuity; c != nil {
		flags.ContinuityLow = c.Degraded || (c.Confidence != nil && *c.Confidence < cfg.ContinuityLowThreshold)
	}
	open := in.OpenContradictions
	if n := in.Narrative; n != nil && len(n.Contradictions) > open {
		open = len(n.Contradictions)
	}
	limit := cfg.ContradictionOpenLimit
	if limit < 1 {
		limit = 1
	}
	flags.ContradictionHigh = open >= limit
	if t := in.Telemetry; t != nil && t.AttachmentRisk != nil {
		flags.AttachmentRiskHigh = *t.AttachmentRisk >= cfg.AttachmentRiskThreshold
	}
	if h := in.Hint; h != nil {
		flags.IntegrationFreeze = h.FreezeUpdates
	}

	d := Decision{
		Mode:         ModeNormal,
		Transparency: TransparencyNormal,
		Flags:        flags,
	}
	escalate := func(mode Mode, disclosure string) {
		d.Mode = mode
		d.FreezeUpdates = true
		d.Transparency = TransparencyHigh
		d.InformationalTone = true
		d.Disclosures = append(d.Disclosures, disclosure)
	}

	for _, r := range modeRules {
		if r.match(flags) {
			escalate(r.mode, r.disclosure)
			break
		}
	}
	if flags.TelemetryBlindSuspected {
		d.Transparency = TransparencyHigh
		d.InformationalTone = true
		d.Disclosures = append(d.Disclosures, disclosureBlind)
	}
	if flags.AttachmentRiskHigh {
		d.InformationalTone = true
		d.Disclosures = append(d.Disclosures, disclosureAttachment)
	}
	if h := in.Hint; h != nil && (h.FreezeUpdates || h.SafetyMode == "SAFE") {
		escalate(ModeSafe, disclosureSafe)
	}

	rules := append([]string(nil), hardRules...)
	if d.InformationalTone {
		rules = append(rules, ruleInformationalTone)
	}
	if d.Transparency == TransparencyHigh {
		rules = append(rules, ruleHighTransparency)
	}
	d.Disclosures = capList(d.Disclosures, cfg.MaxDisclosures, cfg.MaxItemLen)
	d.SystemRules = capList(rules, cfg.MaxRules, cfg.MaxItemLen)
	if d.Disclosures == nil {
		d.Disclosures = []string{}
	}
	return d, next
}

// #endregion engine

// #region stagnation

// stagnation reports telemetry blindness: every shared channel has moved less
// than epsilon since the reference snapshot, and the reference is at least one
// window old. Any movement re-anchors the reference.
func (e *Engine) stagnation(mem Memory, in Input, now time.Time) (bool, Memory) {
	if in.Telemetry == nil || len(in.Telemetry.EMA) == 0 {
		return false, mem
	}
	current := make(map[string]float64, len(in.Telemetry.EMA))
	for k, v := range in.Telemetry.EMA {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			current[k] = v
		}
	}
	fresh := Memory{RefEMA: current, RefAt: now}
	if mem.RefEMA == nil {
		return false, fresh
	}

	shared := 0
	maxDiff := 0.0
	for _, k := range telemetryChannels {
		cur, ok1 := current[k]
		ref, ok2 := mem.RefEMA[k]
		if !ok1 || !ok2 {
			continue
		}
		shared++
		maxDiff = math.Max(maxDiff, math.Abs(cur-ref))
	}
	if shared == 0 || maxDiff >= e.config.StagnationEpsilon {
		return false, fresh
	}
	return now.Sub(mem.RefAt) >= e.config.StagnationWindow, mem
}

// #endregion stagnation

func capList(items []string, maxItems, maxLen int) []string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if utf8.RuneCountInString(s) > maxLen {
			s = string([]rune(s)[:maxLen])
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
