package integration

import (
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/failure"
	"github.com/danielpatrickdp/continuity-arbiter/internal/fingerprint"
	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/subjectivity"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
	"go.uber.org/zap"
)

// #region arbitration

type arbiterView struct {
	level int
	mode  subjectivity.Mode
	phase temporal.Phase
}

type arbitrationRule struct {
	name   string
	safety SafetyMode
	match  func(arbiterView) bool
}

// arbitration is the decision table, Safety before Identity Continuity.
// The first matching rule sets the safety mode.
var arbitration = []arbitrationRule{
	{"failure_level>=3", SafetySafe, func(v arbiterView) bool { return v.level >= 3 }},
	{"subjectivity_safe", SafetySafe, func(v arbiterView) bool { return v.mode == subjectivity.ModeSafe }},
	{"phase_degraded_safe", SafetySafe, func(v arbiterView) bool { return v.phase == temporal.PhaseDegradedSafe }},
	{"failure_level==2", SafetyGuarded, func(v arbiterView) bool { return v.level == 2 }},
	{"phase_shock_lock", SafetyGuarded, func(v arbiterView) bool { return v.phase == temporal.PhaseShockLock }},
	{"phase_reconstruction", SafetyGuarded, func(v arbiterView) bool { return v.phase == temporal.PhaseReconstruction }},
}

// #endregion arbitration

// #region controller

// Controller sequences the temporal, failure and subjectivity engines and
// arbitrates the turn's safety mode. It holds no per-session state.
type Controller struct {
	config       Config
	temporal     *temporal.Engine
	failure      *failure.Detector
	subjectivity *subjectivity.Controller
	producer     *signals.Producer
	logger       *zap.Logger
}

// NewController builds the engines from config. A nil logger is replaced by a no-op.
func NewController(config Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		config:       config,
		temporal:     temporal.NewEngine(config.Temporal),
		failure:      failure.NewDetector(config.Failure),
		subjectivity: subjectivity.NewController(config.Subjectivity),
		producer:     signals.NewProducer(config.Signals),
		logger:       logger.Named("integration"),
	}
}

// Temporal exposes the wired temporal engine.
func (c *Controller) Temporal() *temporal.Engine {
	return c.temporal
}

// Process runs one turn: tick, assess, evaluate, arbitrate. prev may be nil
// for a new identity. The returned phase event is nil when the phase held.
func (c *Controller) Process(prev *temporal.State, mem Memory, in Input) (Result, *temporal.State, *temporal.PhaseEvent, Memory) {
	now := in.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	derived := c.producer.Produce(in.Continuity, in.Narrative, in.Self, in.Value)
	pressure := derived.ContradictionPressure
	if in.ContradictionPressure != nil {
		pressure = *in.ContradictionPressure
	}

	// 1. temporal identity
	state, tel, phaseEvent := c.temporal.Tick(prev, temporal.TickInput{
		At:                         now,
		TraceID:                    in.TraceID,
		ContinuityConfidence:       derived.ContinuityConfidence,
		DriftMagnitude:             in.DriftMagnitude,
		ContradictionPressure:      pressure,
		ExternalOverwriteSuspected: in.ExternalOverwriteSuspected,
		Values:                     in.Values,
		Traits:                     in.Traits,
		Ego:                        in.Ego,
		NarrativeEntropy:           derived.NarrativeEntropy,
		TriggerReconstruction:      in.TriggerReconstruction,
	})

	// 2. failure detection on the fresh distance
	assessment, failureMem := c.failure.Assess(mem.Failure, failure.Input{
		At:                         now,
		ContinuityConfidence:       derived.ContinuityConfidence,
		NarrativeCoherence:         derived.NarrativeCoherence,
		NarrativeEntropy:           derived.NarrativeEntropy,
		ValueStability:             derived.ValueStability,
		SelfModelConsistency:       derived.SelfModelConsistency,
		IdentityDistanceToCore:     tel.DistToCore,
		ExternalOverwriteSuspected: in.ExternalOverwriteSuspected,
		ContradictionsOpen:         derived.ContradictionsOpen,
	})

	// 3. subjectivity
	level := assessment.Level
	decision, subjMem := c.subjectivity.Evaluate(mem.Subjectivity, subjectivity.Input{
		At:      now,
		TraceID: in.TraceID,
		Scores:  in.Scores,
		Temporal: &subjectivity.TemporalSnapshot{
			StabilityBudget: tel.StabilityBudget,
			BudgetMinSafe:   tel.BudgetMinSafe,
		},
		FailureLevel:                    &level,
		ExternalOverwriteSuspected:      in.ExternalOverwriteSuspected,
		NarrativeCollapseSuspected:      derived.NarrativeCollapse,
		SelfModelFragmentationSuspected: assessment.Flags.IdentityEntropyHigh,
		ForcedMode:                      in.OperatorSubjectivityMode,
	})

	// 4. arbitration
	view := arbiterView{level: assessment.Level, mode: decision.Mode, phase: state.Phase}
	safety := SafetyNormal
	var matched []string
	for _, r := range arbitration {
		if !r.match(view) {
			continue
		}
		if len(matched) == 0 {
			safety = r.safety
		}
		matched = append(matched, r.name)
	}
	freeze := safety == SafetySafe || (safety == SafetyGuarded && c.config.GuardedFreeze)

	// 5. snapshot
	snapshot := IdentitySnapshot{
		Timestamp:     now,
		IdentityID:    state.IdentityID,
		IdentityPhase: state.Phase,
		AttractorPosition: AttractorPosition{
			DistToCore:   tel.DistToCore,
			DistToMiddle: tel.DistToMiddle,
		},
		CoreHash:           state.Attractor.CoreHash,
		ValueVectorHash:    fingerprint.Of(in.Value),
		NarrativeStateHash: narrativeHash(in.Narrative),
		SubjectivityMode:   decision.Mode,
		StabilityBudget:    state.StabilityBudget,
	}

	// 6. events, in fixed order
	events := make([]Event, 0, 5)
	if phaseEvent != nil {
		events = append(events, Event{Type: EventIdentityPhaseChange, At: phaseEvent.At, Payload: *phaseEvent})
	}
	if decision.Event != nil {
		events = append(events, Event{Type: EventSubjectivityModeChange, At: decision.Event.At, Payload: *decision.Event})
	}
	if assessment.Level >= 2 {
		events = append(events, Event{Type: EventFailureAlert, At: now, Payload: assessment})
	}
	if freeze {
		events = append(events, Event{Type: EventStabilityWarning, At: now, Payload: StabilityWarning{SafetyMode: safety}})
	}
	if ref := c.config.ExternalReferenceCoreHash; ref != "" && state.Attractor.CoreHash != "" && ref != state.Attractor.CoreHash {
		events = append(events, Event{Type: EventStabilityWarning, At: now, Payload: StabilityWarning{
			Type:              WarningExternalReferenceMismatch,
			ReferenceCoreHash: ref,
			CurrentCoreHash:   state.Attractor.CoreHash,
		}})
	}

	c.log(in.TraceID, state, phaseEvent, decision, assessment, safety)

	result := Result{
		Temporal:      tel,
		Subjectivity:  decision,
		Failure:       assessment,
		Snapshot:      snapshot,
		Events:        events,
		FreezeUpdates: freeze,
		SafetyMode:    safety,
		Arbitration:   matched,
	}
	return result, state, phaseEvent, Memory{Failure: failureMem, Subjectivity: subjMem}
}

// GuardrailHint forwards the arbitration to the guardrail engine.
func (r Result) GuardrailHint() *guardrail.Hint {
	return &guardrail.Hint{FreezeUpdates: r.FreezeUpdates, SafetyMode: string(r.SafetyMode)}
}

// #endregion controller

// #region helpers

func narrativeHash(n signals.NarrativeMeta) string {
	return fingerprint.Of(map[string]any{
		"theme_label":                  n.ThemeLabel,
		"fragmentation_entropy":        n.FragmentationEntropy,
		"identity_uncertainty_entropy": n.IdentityUncertaintyEntropy,
	})
}

func (c *Controller) log(traceID string, st *temporal.State, pe *temporal.PhaseEvent, d subjectivity.Decision, a failure.Assessment, safety SafetyMode) {
	fields := []zap.Field{
		zap.String("trace_id", traceID),
		zap.String("identity_id", st.IdentityID),
		zap.String("phase", string(st.Phase)),
		zap.String("mode", string(d.Mode)),
		zap.Int("failure_level", a.Level),
		zap.Float64("stability_budget", st.StabilityBudget),
		zap.String("safety_mode", string(safety)),
	}
	if pe != nil {
		c.logger.Info("identity phase change", append(fields, zap.String("from_phase", string(pe.FromPhase)))...)
	}
	if d.Event != nil {
		c.logger.Info("subjectivity mode change", append(fields, zap.String("from_mode", string(d.Event.FromMode)), zap.Strings("reasons", d.Reasons))...)
	}
	if safety == SafetySafe {
		c.logger.Warn("safe mode arbitrated", append(fields, zap.Strings("failure_reasons", a.Reasons))...)
		return
	}
	c.logger.Debug("turn processed", fields...)
}

// #endregion helpers
