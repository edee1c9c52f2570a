package temporal

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/fingerprint"
	"github.com/google/uuid"
)

// #region state
// State is the persisted TemporalIdentityState for one conversational subject.
// It is owned by the arbiter; callers replace it wholesale after each turn.
type State struct {
	IdentityID           string            `json:"identity_id"`
	SchemaVersion        int               `json:"schema_version"`
	CreatedAt            time.Time         `json:"created_at"`
	LastTickAt           time.Time         `json:"last_tick_at"`
	UptimeMs             int64             `json:"uptime_ms"`
	BaseInertia          float64           `json:"base_inertia"`
	Inertia              float64           `json:"inertia"`
	ContextCoupling      float64           `json:"context_coupling"`
	StabilityBudget      float64           `json:"stability_budget"`
	BudgetMax            float64           `json:"budget_max"`
	BudgetMinSafe        float64           `json:"budget_min_safe"`
	Plasticity           PlasticityProfile `json:"plasticity_profile"`
	ContinuityConfidence float64           `json:"continuity_confidence"`
	ContinuityFlags      ContinuityFlags   `json:"continuity_flags"`
	Attractor            AttractorState    `json:"attractor_state"`
	Phase                Phase             `json:"phase"`
	PhaseEvents          []PhaseEvent      `json:"phase_events"`
	Integrity            IntegrityFlags    `json:"integrity"`
	CoreAnchor           Anchor            `json:"core_anchor"`
	MiddleAnchor         Anchor            `json:"middle_anchor"`
}

// NewState creates a fresh identity whose core and middle anchors are both
// seeded from the supplied vectors.
func NewState(config Config, values, traits map[string]float64, ego map[string]any, now time.Time) *State {
	core := Anchor{
		Value:         copyVector(values),
		Trait:         copyVector(traits),
		Ego:           copyEgo(ego),
		CreatedAt:     now,
		SchemaVersion: SchemaVersion,
	}
	s := &State{
		IdentityID:           uuid.New().String(),
		SchemaVersion:        SchemaVersion,
		CreatedAt:            now,
		LastTickAt:           now,
		BaseInertia:          clamp01(config.BaseInertia),
		Inertia:              clamp01(config.BaseInertia),
		ContextCoupling:      clamp01(config.ContextCoupling),
		StabilityBudget:      config.BudgetMax,
		BudgetMax:            config.BudgetMax,
		BudgetMinSafe:        config.BudgetMinSafe,
		Plasticity:           config.Plasticity,
		ContinuityConfidence: 0.5,
		Phase:                PhaseNormal,
		PhaseEvents:          []PhaseEvent{},
		CoreAnchor:           core,
		MiddleAnchor:         core.clone(),
	}
	s.Attractor.CoreHash = anchorHash(s.CoreAnchor)
	s.Attractor.MiddleHash = anchorHash(s.MiddleAnchor)
	return s
}

// Clone returns a deep copy so Tick never mutates the caller's value.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.PhaseEvents = append([]PhaseEvent(nil), s.PhaseEvents...)
	c.CoreAnchor = s.CoreAnchor.clone()
	c.MiddleAnchor = s.MiddleAnchor.clone()
	return &c
}

func (a Anchor) clone() Anchor {
	c := a
	c.Value = copyVector(a.Value)
	c.Trait = copyVector(a.Trait)
	c.Ego = copyEgo(a.Ego)
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}

// #endregion state

// #region codec
// Encode serializes the state as JSON for persistence.
func (s *State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode temporal state: %w", err)
	}
	return data, nil
}

// Decode parses a persisted state. Bounded fields are clamped and an
// unexpected schema version raises the integrity flags instead of failing.
func Decode(raw []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode temporal state: %w", err)
	}
	s.normalize()
	return &s, nil
}

func (s *State) normalize() {
	defaults := DefaultConfig()
	if !finite(s.BudgetMax) || s.BudgetMax <= 0 {
		s.BudgetMax = defaults.BudgetMax
	}
	if !finite(s.BudgetMinSafe) || s.BudgetMinSafe < 0 || s.BudgetMinSafe > s.BudgetMax {
		s.BudgetMinSafe = math.Min(defaults.BudgetMinSafe, s.BudgetMax)
	}
	s.StabilityBudget = clamp(s.StabilityBudget, 0, s.BudgetMax)
	s.BaseInertia = clamp01(s.BaseInertia)
	s.Inertia = clamp01(s.Inertia)
	s.ContextCoupling = clamp01(s.ContextCoupling)
	s.ContinuityConfidence = clamp01(s.ContinuityConfidence)
	s.Attractor.DistToCore = nonNegative(s.Attractor.DistToCore)
	s.Attractor.DistToMiddle = nonNegative(s.Attractor.DistToMiddle)
	if s.Plasticity == (PlasticityProfile{}) {
		s.Plasticity = defaults.Plasticity
	}
	if s.PhaseEvents == nil {
		s.PhaseEvents = []PhaseEvent{}
	}
	if !s.Phase.Valid() {
		s.Phase = PhaseDegradedSafe
		s.Integrity.ManualReviewRequired = true
	}
	if s.SchemaVersion != SchemaVersion {
		s.Integrity.SchemaMismatch = true
		s.Integrity.ManualReviewRequired = true
	}
}

// #endregion codec

// #region operator
// Reconcile is the operator migration step for a state carrying a schema
// mismatch. It adopts the current schema version, re-fingerprints both
// anchors and requests a fresh snapshot. Returns false when nothing changed.
func (s *State) Reconcile(now time.Time) bool {
	if !s.Integrity.SchemaMismatch && s.SchemaVersion == SchemaVersion {
		return false
	}
	s.SchemaVersion = SchemaVersion
	s.CoreAnchor.SchemaVersion = SchemaVersion
	s.MiddleAnchor.SchemaVersion = SchemaVersion
	s.Attractor.CoreHash = anchorHash(s.CoreAnchor)
	s.Attractor.MiddleHash = anchorHash(s.MiddleAnchor)
	s.Integrity.SchemaMismatch = false
	s.Integrity.ManualReviewRequired = false
	s.Integrity.SnapshotRequired = true
	s.LastTickAt = now
	return true
}

// AllowedDelta returns how far the given category may move this turn.
// Outside NORMAL, or with integrity problems, nothing may move.
func (s *State) AllowedDelta(category Category) float64 {
	if s.Phase != PhaseNormal || s.Integrity.SchemaMismatch || s.BudgetMax <= 0 {
		return 0
	}
	var limit float64
	switch category {
	case CategoryCoreValues:
		limit = s.Plasticity.CoreValuesMaxDelta
	case CategoryNarrative:
		limit = s.Plasticity.NarrativeMaxDelta
	case CategoryStyle:
		limit = s.Plasticity.StyleMaxDelta
	case CategoryToolPolicy:
		limit = s.Plasticity.ToolPolicyMaxDelta
	default:
		return 0
	}
	return nonNegative(limit) * clamp01(s.StabilityBudget/s.BudgetMax)
}

// RecentPhaseEventIDs returns up to n event ids, newest first.
func (s *State) RecentPhaseEventIDs(n int) []string {
	if n > len(s.PhaseEvents) {
		n = len(s.PhaseEvents)
	}
	ids := make([]string, 0, n)
	for _, e := range s.PhaseEvents[:n] {
		ids = append(ids, e.EventID)
	}
	return ids
}

// #endregion operator

func anchorHash(a Anchor) string {
	return fingerprint.Of(map[string]any{
		"value": a.Value,
		"trait": a.Trait,
		"ego":   a.Ego,
	})
}

// copyEgo deep-copies the ego blob, dropping non-finite numbers so the anchor
// stays encodable.
func copyEgo(ego map[string]any) map[string]any {
	if ego == nil {
		return nil
	}
	out := make(map[string]any, len(ego))
	for k, v := range ego {
		if c, ok := finiteValue(v); ok {
			out[k] = c
		}
	}
	return out
}

func finiteValue(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, finite(x)
	case float32:
		return x, finite(float64(x))
	case map[string]any:
		return copyEgo(x), true
	case []any:
		out := make([]any, 0, len(x))
		for _, e := range x {
			if c, ok := finiteValue(e); ok {
				out = append(out, c)
			}
		}
		return out, true
	default:
		return v, true
	}
}

func copyVector(v map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(v))
	for k, x := range v {
		if finite(x) {
			out[k] = x
		}
	}
	return out
}
