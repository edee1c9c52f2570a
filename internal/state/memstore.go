package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/logging"
	"github.com/google/uuid"
)

// MemStore is an in-memory Repository for replay and tests. States are
// round-tripped through Encode/Decode so callers never share pointers with it.
type MemStore struct {
	mu       sync.Mutex
	active   map[string]Loaded
	raw      map[string][]byte
	events   map[string][]EventRecord
	versions map[string][]VersionRecord
	nextID   int64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		active:   make(map[string]Loaded),
		raw:      make(map[string][]byte),
		events:   make(map[string][]EventRecord),
		versions: make(map[string][]VersionRecord),
	}
}

// Load returns the session's active version or ErrNotFound.
func (m *MemStore) Load(ctx context.Context, sessionID string) (Loaded, error) {
	if err := ctx.Err(); err != nil {
		return Loaded{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.active[sessionID]
	if !ok {
		return Loaded{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	st, err := decodeState(m.raw[l.VersionID])
	if err != nil {
		return Loaded{}, err
	}
	l.State = st
	return l, nil
}

// CommitTurn stores the turn with the same parent check as Store.
func (m *MemStore) CommitTurn(ctx context.Context, c TurnCommit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.State == nil {
		return "", fmt.Errorf("commit turn: nil state")
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	raw, err := c.State.Encode()
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	versionID := uuid.New().String()
	entries, err := logging.Entries(c.SessionID, versionID, c.TraceID, c.Events)
	if err != nil {
		return "", fmt.Errorf("encode events: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.active[c.SessionID].VersionID; cur != c.ParentID {
		return "", fmt.Errorf("commit %s onto %s (active %s): %w", c.SessionID, c.ParentID, cur, ErrConflict)
	}
	m.raw[versionID] = raw
	m.active[c.SessionID] = Loaded{SessionID: c.SessionID, VersionID: versionID, Memory: c.Memory}
	m.versions[c.SessionID] = append(m.versions[c.SessionID], VersionRecord{
		VersionID:     versionID,
		SessionID:     c.SessionID,
		ParentID:      c.ParentID,
		IdentityID:    c.State.IdentityID,
		SchemaVersion: c.State.SchemaVersion,
		Phase:         string(c.State.Phase),
		Verification:  c.Verification,
		CreatedAt:     c.At,
	})
	for _, e := range entries {
		m.nextID++
		m.events[c.SessionID] = append(m.events[c.SessionID], EventRecord{
			ID:          m.nextID,
			SessionID:   e.SessionID,
			VersionID:   e.VersionID,
			TraceID:     e.TraceID,
			Seq:         e.Seq,
			EventType:   e.EventType,
			PayloadJSON: e.PayloadJSON,
			CreatedAt:   e.CreatedAt,
		})
	}
	return versionID, nil
}

// ListEvents returns a session's most recent events, newest first.
func (m *MemStore) ListEvents(_ context.Context, sessionID string, limit int) ([]EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.events[sessionID]
	out := make([]EventRecord, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// ListVersions returns a session's most recent versions, newest first.
func (m *MemStore) ListVersions(_ context.Context, sessionID string, limit int) ([]VersionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.versions[sessionID]
	out := make([]VersionRecord, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Sessions lists sessions in id order.
func (m *MemStore) Sessions(_ context.Context) ([]SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionRecord, 0, len(m.active))
	for id, l := range m.active {
		var at time.Time
		if vs := m.versions[id]; len(vs) > 0 {
			at = vs[len(vs)-1].CreatedAt
		}
		out = append(out, SessionRecord{SessionID: id, VersionID: l.VersionID, UpdatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}
