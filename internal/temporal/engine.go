package temporal

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	highNoiseDrift         = 0.35
	highNoiseContradiction = 0.75

	shockOverwrite      = 0.25
	shockReconstruction = 0.15
	shockContinuity     = 0.18

	driftCostScale    = 0.25
	driftCostWeight   = 0.12
	conflictCostRate  = 0.10
	overwriteCost     = 0.35
	recoveryBonus     = 0.08
	recentEventWindow = 6
)

// Engine advances a TemporalIdentityState one turn at a time. It holds only
// configuration; all memory lives in the State passed to Tick.
type Engine struct {
	config Config
}

// NewEngine creates an engine with the given config.
func NewEngine(config Config) *Engine {
	if config.ShockHalfLife < 10*time.Minute {
		config.ShockHalfLife = 10 * time.Minute
	}
	if config.PhaseHistoryCap <= 0 {
		config.PhaseHistoryCap = DefaultConfig().PhaseHistoryCap
	}
	return &Engine{config: config}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// #region tick
// Tick computes the next state from prev and this turn's signals. prev is
// never mutated. A nil prev starts a new identity anchored at the current
// vectors. The returned event is non-nil iff the phase changed.
func (e *Engine) Tick(prev *State, in TickInput) (*State, Telemetry, *PhaseEvent) {
	cfg := e.config
	now := in.At
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var st *State
	if prev == nil {
		st = NewState(cfg, in.Values, in.Traits, in.Ego, now)
	} else {
		st = prev.Clone()
	}
	if st.SchemaVersion != SchemaVersion {
		st.Integrity.SchemaMismatch = true
		st.Integrity.ManualReviewRequired = true
	}
	frozen := st.Integrity.SchemaMismatch

	dt := 0.0
	if !st.LastTickAt.IsZero() && now.After(st.LastTickAt) {
		dt = now.Sub(st.LastTickAt).Seconds()
	}
	if now.After(st.LastTickAt) {
		st.LastTickAt = now
	}
	st.UptimeMs += int64(dt * 1000)

	confidence := in.ContinuityConfidence
	if !finite(confidence) {
		confidence = 0.5
	}
	confidence = clamp01(confidence)
	drift := nonNegative(in.DriftMagnitude)
	contradiction := clamp01(in.ContradictionPressure)
	entropy := clamp01(in.NarrativeEntropy)
	overwrite := in.ExternalOverwriteSuspected

	// continuity sensors
	st.ContinuityConfidence = clamp01(ema(st.ContinuityConfidence, confidence, cfg.ContinuityEMAAlpha))
	var flags ContinuityFlags
	if in.ContinuityFlags != nil {
		flags = *in.ContinuityFlags
	}
	overwrite = overwrite || flags.ExternalOverwriteSuspected
	flags.ExternalOverwriteSuspected = overwrite
	flags.HighNoiseSuspected = flags.HighNoiseSuspected || drift >= highNoiseDrift || contradiction >= highNoiseContradiction
	flags.FragmentationSuspected = flags.FragmentationSuspected || entropy >= cfg.NarrativeEntropyHigh
	flags.ContinuityBreakSuspected = flags.ContinuityBreakSuspected || st.ContinuityConfidence < cfg.ContinuityBreakThreshold
	st.ContinuityFlags = flags

	// attractor distances
	st.Attractor.DistToCore = distance(in.Values, in.Traits, st.CoreAnchor, cfg.TraitWeight)
	st.Attractor.DistToMiddle = distance(in.Values, in.Traits, st.MiddleAnchor, cfg.TraitWeight)

	// transient shock term, decayed by wall-clock time since the last tick
	shock := 0.0
	if overwrite || frozen {
		shock = shockOverwrite
	}
	if in.TriggerReconstruction {
		shock = math.Max(shock, shockReconstruction)
	}
	if flags.ContinuityBreakSuspected {
		shock = math.Max(shock, shockContinuity)
	}
	if dt > 0 && shock > 0 {
		lambda := math.Ln2 / cfg.ShockHalfLife.Seconds()
		shock *= math.Exp(-lambda * dt)
	}

	if !frozen {
		e.applyPhysics(st, dt, shock, drift, contradiction, overwrite, in.TriggerReconstruction)
	}

	// phase selection
	next := PhaseNormal
	switch {
	case st.StabilityBudget <= st.BudgetMinSafe:
		next = PhaseDegradedSafe
	case overwrite || frozen:
		next = PhaseShockLock
	case in.TriggerReconstruction || flags.FragmentationSuspected:
		next = PhaseReconstruction
	}

	var event *PhaseEvent
	if next != st.Phase {
		event = &PhaseEvent{
			EventID:    uuid.New().String(),
			At:         now,
			FromPhase:  st.Phase,
			ToPhase:    next,
			Confidence: clamp01(0.55 + 0.35*(1-st.ContinuityConfidence)),
			CausalTrace: CausalTrace{
				TraceID:                    in.TraceID,
				ExternalOverwriteSuspected: overwrite,
				SchemaMismatch:             frozen,
				TriggerReconstruction:      in.TriggerReconstruction,
				DriftMagnitude:             drift,
				ContradictionPressure:      contradiction,
				NarrativeEntropy:           entropy,
				StabilityBudget:            st.StabilityBudget,
			},
			TelemetryRef: in.TraceID,
		}
		st.Phase = next
		history := make([]PhaseEvent, 0, len(st.PhaseEvents)+1)
		history = append(history, *event)
		history = append(history, st.PhaseEvents...)
		if len(history) > cfg.PhaseHistoryCap {
			history = history[:cfg.PhaseHistoryCap]
		}
		st.PhaseEvents = history
	}

	// middle anchor tracks the live state only while stable
	if !frozen && st.Phase == PhaseNormal && st.StabilityBudget >= cfg.MiddleAnchorMinBudget {
		if in.Values != nil {
			st.MiddleAnchor.Value = trackVector(st.MiddleAnchor.Value, in.Values, cfg.MiddleAnchorAlpha)
		}
		if in.Traits != nil {
			st.MiddleAnchor.Trait = trackVector(st.MiddleAnchor.Trait, in.Traits, cfg.MiddleAnchorAlpha)
		}
		updated := now
		st.MiddleAnchor.UpdatedAt = &updated
		st.Attractor.MiddleHash = anchorHash(st.MiddleAnchor)
	}

	telemetry := Telemetry{
		At:                   now,
		IdentityID:           st.IdentityID,
		Phase:                st.Phase,
		Inertia:              st.Inertia,
		ShockLock:            shock,
		ContextCoupling:      st.ContextCoupling,
		StabilityBudget:      st.StabilityBudget,
		BudgetMinSafe:        st.BudgetMinSafe,
		ContinuityConfidence: st.ContinuityConfidence,
		DistToCore:           st.Attractor.DistToCore,
		DistToMiddle:         st.Attractor.DistToMiddle,
		Flags:                st.ContinuityFlags,
		Integrity:            st.Integrity,
		RecentPhaseEventIDs:  st.RecentPhaseEventIDs(recentEventWindow),
	}
	return st, telemetry, event
}

// #endregion tick

// #region physics
// applyPhysics updates inertia and the stability budget in place.
func (e *Engine) applyPhysics(st *State, dt, shock, drift, contradiction float64, overwrite, reconstruct bool) {
	ctxTerm := clamp01(0.25*contradiction + 0.20*clamp01(drift/highNoiseDrift))
	bonus := 0.0
	if st.ContinuityConfidence >= 0.65 && drift < 0.10 && contradiction < 0.20 {
		bonus = recoveryBonus
	}
	st.BaseInertia = clamp01(st.BaseInertia)
	st.Inertia = clamp01(st.BaseInertia + shock + ctxTerm - bonus)

	budget := st.StabilityBudget
	budget += (dt / 3600) * nonNegative(st.Plasticity.RecoveryRate)
	budget -= clamp01(drift/driftCostScale) * driftCostWeight
	budget -= contradiction * conflictCostRate
	if overwrite {
		budget -= overwriteCost
	}
	if reconstruct {
		budget -= nonNegative(st.Plasticity.IrreversibleCostRate)
	}
	st.StabilityBudget = clamp(budget, 0, st.BudgetMax)
}

// #endregion physics
