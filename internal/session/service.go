package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/eval"
	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/recovery"
	"github.com/danielpatrickdp/continuity-arbiter/internal/state"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
	"go.uber.org/zap"
)

var categories = []temporal.Category{
	temporal.CategoryCoreValues,
	temporal.CategoryNarrative,
	temporal.CategoryStyle,
	temporal.CategoryToolPolicy,
}

// #region service

// Service runs turns against a repository. Turns for one session are
// serialized; different sessions run in parallel.
type Service struct {
	repo        state.Repository
	integration *integration.Controller
	guardrail   *guardrail.Engine
	recovery    *recovery.Advisor
	eval        *eval.Harness
	logger      *zap.Logger
	locks       keyedMutex
	now         func() time.Time
}

// NewService wires the engines from config. A nil logger is replaced by a no-op.
func NewService(repo state.Repository, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		integration: integration.NewController(config.Integration, logger),
		guardrail:   guardrail.NewEngine(config.Guardrail),
		recovery:    recovery.NewAdvisor(config.Recovery),
		eval:        eval.NewHarness(config.Eval),
		logger:      logger.Named("session"),
		locks:       keyedMutex{locks: make(map[string]*refLock)},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTurn loads the session, runs every engine, verifies the result and
// commits it atomically. A context cancelled before the commit leaves the
// session untouched.
func (s *Service) ProcessTurn(ctx context.Context, sessionID string, in TurnInput) (TurnOutcome, error) {
	if sessionID == "" {
		return TurnOutcome{}, fmt.Errorf("process turn: empty session id: %w", ErrInvalidInput)
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	loaded, err := s.repo.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return TurnOutcome{}, fmt.Errorf("load session: %w", err)
	}
	if in.At.IsZero() {
		in.At = s.now()
	}
	mem := loaded.Memory

	res, next, _, integrationMem := s.integration.Process(loaded.State, mem.Integration, in.Input)

	continuity, narrative := in.Continuity, in.Narrative
	decision, guardrailMem := s.guardrail.Decide(mem.Guardrail, guardrail.Input{
		At:                 in.At,
		Telemetry:          in.Telemetry,
		Continuity:         &continuity,
		Narrative:          &narrative,
		OpenContradictions: in.Self.OpenContradictions,
		Integrity:          next.Integrity,
		Hint:               res.GuardrailHint(),
	})

	advice, recoveryMem := s.recovery.Decide(mem.Recovery, res.Failure)
	if advice.Active {
		res.Events = append(res.Events, integration.Event{Type: integration.EventAutoRecovery, At: in.At, Payload: advice})
	}

	verification := s.eval.Run(eval.Subject{Prev: loaded.State, Next: next, Integration: res, Guardrail: decision})

	out := TurnOutcome{
		SessionID:     sessionID,
		ParentID:      loaded.VersionID,
		Result:        res,
		Guardrail:     decision,
		Recovery:      advice,
		Verification:  verification,
		AllowedDeltas: allowedDeltas(next),
	}
	fields := []zap.Field{
		zap.String("session_id", sessionID),
		zap.String("trace_id", in.TraceID),
		zap.String("safety_mode", string(res.SafetyMode)),
		zap.String("guardrail_mode", string(decision.Mode)),
	}
	if !verification.Passed {
		s.logger.Warn("turn failed verification", append(fields, zap.String("reason", verification.Reason))...)
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("process turn: %w", err)
	}

	report, err := json.Marshal(verification)
	if err != nil {
		return out, fmt.Errorf("marshal verification: %w", err)
	}
	versionID, err := s.repo.CommitTurn(ctx, state.TurnCommit{
		SessionID: sessionID,
		ParentID:  loaded.VersionID,
		TraceID:   in.TraceID,
		State:     next,
		Memory: state.Memory{
			Integration: integrationMem,
			Guardrail:   guardrailMem,
			Recovery:    recoveryMem,
		},
		Snapshot:     res.Snapshot,
		Events:       res.Events,
		Verification: string(report),
		At:           in.At,
	})
	if err != nil {
		s.logger.Error("commit failed", append(fields, zap.Error(err))...)
		return out, fmt.Errorf("commit turn: %w", err)
	}
	out.VersionID = versionID
	out.Committed = true
	s.logger.Debug("turn committed", append(fields, zap.String("version_id", versionID))...)
	return out, nil
}

// GetState returns a session's active version.
func (s *Service) GetState(ctx context.Context, sessionID string) (state.Loaded, error) {
	if sessionID == "" {
		return state.Loaded{}, fmt.Errorf("get state: empty session id: %w", ErrInvalidInput)
	}
	return s.repo.Load(ctx, sessionID)
}

// Reconcile is the operator step that clears a schema mismatch. It commits a
// migrated version; nothing is committed when the state was already clean.
func (s *Service) Reconcile(ctx context.Context, sessionID string) (bool, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	loaded, err := s.repo.Load(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	now := s.now()
	st := loaded.State.Clone()
	if !st.Reconcile(now) {
		return false, nil
	}
	_, err = s.repo.CommitTurn(ctx, state.TurnCommit{
		SessionID: sessionID,
		ParentID:  loaded.VersionID,
		TraceID:   "reconcile",
		State:     st,
		Memory:    loaded.Memory,
		Snapshot: integration.IdentitySnapshot{
			Timestamp:       now,
			IdentityID:      st.IdentityID,
			IdentityPhase:   st.Phase,
			CoreHash:        st.Attractor.CoreHash,
			StabilityBudget: st.StabilityBudget,
		},
		At: now,
	})
	if err != nil {
		return false, fmt.Errorf("commit reconcile: %w", err)
	}
	s.logger.Info("schema reconciled", zap.String("session_id", sessionID), zap.Int("schema_version", st.SchemaVersion))
	return true, nil
}

// #endregion service

// #region helpers

func allowedDeltas(st *temporal.State) map[temporal.Category]float64 {
	out := make(map[temporal.Category]float64, len(categories))
	for _, c := range categories {
		out[c] = st.AllowedDelta(c)
	}
	return out
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// #endregion helpers
