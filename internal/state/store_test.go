package state

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/signals"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
	_ "modernc.org/sqlite"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// turn runs a real integration turn so commits carry consistent payloads.
func turn(t *testing.T, prev *temporal.State, mem integration.Memory, at time.Time, overwrite bool) (integration.Result, *temporal.State, integration.Memory) {
	t.Helper()
	c := integration.NewController(integration.DefaultConfig(), nil)
	res, st, _, next := c.Process(prev, mem, integration.Input{
		At:                         at,
		TraceID:                    "trace-" + at.Format("150405"),
		Continuity:                 signals.ContinuityMeta{Confidence: signals.Float(0.9)},
		Values:                     map[string]float64{"care": 0.8},
		ExternalOverwriteSuspected: overwrite,
	})
	return res, st, next
}

func commit(t *testing.T, repo Repository, session, parent string, res integration.Result, st *temporal.State, mem integration.Memory) string {
	t.Helper()
	id, err := repo.CommitTurn(context.Background(), TurnCommit{
		SessionID: session,
		ParentID:  parent,
		TraceID:   "trace",
		State:     st,
		Memory:    Memory{Integration: mem},
		Snapshot:  res.Snapshot,
		Events:    res.Events,
		At:        res.Snapshot.Timestamp,
	})
	if err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}
	return id
}

func TestLoadUnknownSession(t *testing.T) {
	for name, repo := range map[string]Repository{"sqlite": tempDB(t), "memory": NewMemStore()} {
		_, err := repo.Load(context.Background(), "nobody")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestCommitAndLoad(t *testing.T) {
	for name, repo := range map[string]Repository{"sqlite": tempDB(t), "memory": NewMemStore()} {
		res, st, mem := turn(t, nil, integration.Memory{}, t0, false)
		v1 := commit(t, repo, "s1", "", res, st, mem)

		loaded, err := repo.Load(context.Background(), "s1")
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if loaded.VersionID != v1 {
			t.Fatalf("%s: expected %s, got %s", name, v1, loaded.VersionID)
		}
		if loaded.State.IdentityID != st.IdentityID || loaded.State.Attractor.CoreHash != st.Attractor.CoreHash {
			t.Fatalf("%s: state did not round-trip", name)
		}
		if !loaded.Memory.Integration.Failure.Valid {
			t.Fatalf("%s: engine memory did not round-trip", name)
		}
	}
}

func TestCommitConflict(t *testing.T) {
	for name, repo := range map[string]Repository{"sqlite": tempDB(t), "memory": NewMemStore()} {
		res, st, mem := turn(t, nil, integration.Memory{}, t0, false)
		v1 := commit(t, repo, "s1", "", res, st, mem)

		_, err := repo.CommitTurn(context.Background(), TurnCommit{SessionID: "s1", ParentID: "", State: st})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("%s: expected ErrConflict for stale parent, got %v", name, err)
		}
		loaded, _ := repo.Load(context.Background(), "s1")
		if loaded.VersionID != v1 {
			t.Fatalf("%s: conflict must not move the active pointer", name)
		}
	}
}

func TestCommitPersistsEventsInOrder(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	res, st, mem := turn(t, nil, integration.Memory{}, t0, false)
	v1 := commit(t, s, "s1", "", res, st, mem)
	res, st, mem = turn(t, st, mem, t0.Add(time.Minute), true)
	if len(res.Events) < 3 {
		t.Fatalf("expected overwrite to emit events, got %d", len(res.Events))
	}
	v2 := commit(t, s, "s1", v1, res, st, mem)

	events, err := s.ListEvents(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != len(res.Events) {
		t.Fatalf("expected %d events, got %d", len(res.Events), len(events))
	}
	// newest first, so the last emitted event leads
	for i, e := range events {
		want := res.Events[len(res.Events)-1-i]
		if e.EventType != string(want.Type) || e.VersionID != v2 {
			t.Fatalf("event %d: expected %s@%s, got %s@%s", i, want.Type, v2, e.EventType, e.VersionID)
		}
	}

	raw, err := s.Snapshot(ctx, v2)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var snap integration.IdentitySnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.IdentityPhase != temporal.PhaseShockLock {
		t.Fatalf("expected SHOCK_LOCK snapshot, got %s", snap.IdentityPhase)
	}
}

func TestRollback(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	res, st, mem := turn(t, nil, integration.Memory{}, t0, false)
	v1 := commit(t, s, "s1", "", res, st, mem)
	res, st, mem = turn(t, st, mem, t0.Add(time.Minute), true)
	v2 := commit(t, s, "s1", v1, res, st, mem)

	if err := s.Rollback(ctx, "s1", v1); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	loaded, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.VersionID != v1 || loaded.State.Phase != temporal.PhaseNormal {
		t.Fatalf("expected NORMAL v1 after rollback, got %s %s", loaded.VersionID, loaded.State.Phase)
	}

	versions, err := s.ListVersions(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].VersionID != v2 || versions[1].ParentID != "" || versions[0].ParentID != v1 {
		t.Fatalf("unexpected history %+v", versions)
	}

	if err := s.Rollback(ctx, "s1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Rollback(ctx, "other", v1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rollback across sessions should fail, got %v", err)
	}
}

func TestLoadFlagsSchemaMismatch(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	_, st, mem := turn(t, nil, integration.Memory{}, t0, false)
	st.SchemaVersion = temporal.SchemaVersion + 1
	v1, err := s.CommitTurn(ctx, TurnCommit{SessionID: "s1", State: st, Memory: Memory{Integration: mem}, At: t0})
	if err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	loaded, err := s.LoadVersion(ctx, v1)
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if !loaded.State.Integrity.SchemaMismatch || !loaded.State.Integrity.ManualReviewRequired {
		t.Fatalf("expected mismatch flags, got %+v", loaded.State.Integrity)
	}
}

func TestSessions(t *testing.T) {
	for name, repo := range map[string]interface {
		Repository
		Sessions(context.Context) ([]SessionRecord, error)
	}{"sqlite": tempDB(t), "memory": NewMemStore()} {
		for _, id := range []string{"b", "a"} {
			res, st, mem := turn(t, nil, integration.Memory{}, t0, false)
			commit(t, repo, id, "", res, st, mem)
		}
		sessions, err := repo.Sessions(context.Background())
		if err != nil {
			t.Fatalf("%s: Sessions: %v", name, err)
		}
		if len(sessions) != 2 || sessions[0].SessionID != "a" || sessions[1].SessionID != "b" {
			t.Fatalf("%s: unexpected sessions %+v", name, sessions)
		}
	}
}

func TestCommitRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, repo := range map[string]Repository{"sqlite": tempDB(t), "memory": NewMemStore()} {
		res, st, mem := turn(t, nil, integration.Memory{}, t0, false)
		_, err := repo.CommitTurn(ctx, TurnCommit{SessionID: "s1", State: st, Memory: Memory{Integration: mem}, Snapshot: res.Snapshot})
		if err == nil {
			t.Fatalf("%s: expected error on cancelled context", name)
		}
		if _, err := repo.Load(context.Background(), "s1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: cancelled commit must not persist, got %v", name, err)
		}
	}
}
