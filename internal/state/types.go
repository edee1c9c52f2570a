package state

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/guardrail"
	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	"github.com/danielpatrickdp/continuity-arbiter/internal/recovery"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
)

var (
	// ErrNotFound is returned for unknown sessions and versions.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a commit's parent is no longer the active version.
	ErrConflict = errors.New("active version changed")
)

// #region memory
// Memory is every engine memory a session threads between turns.
type Memory struct {
	Integration integration.Memory `json:"integration"`
	Guardrail   guardrail.Memory   `json:"guardrail"`
	Recovery    recovery.Memory    `json:"recovery"`
}

// #endregion memory

// #region loaded
// Loaded is a session's active version.
type Loaded struct {
	SessionID string
	VersionID string
	State     *temporal.State
	Memory    Memory
}

// #endregion loaded

// #region turn-commit
// TurnCommit is everything one turn persists. ParentID must equal the active
// version at commit time.
type TurnCommit struct {
	SessionID    string
	ParentID     string
	TraceID      string
	State        *temporal.State
	Memory       Memory
	Snapshot     integration.IdentitySnapshot
	Events       []integration.Event
	Verification string // eval report JSON
	At           time.Time
}

// #endregion turn-commit

// #region records
// VersionRecord is one row of a session's version history.
type VersionRecord struct {
	VersionID     string    `json:"version_id"`
	SessionID     string    `json:"session_id"`
	ParentID      string    `json:"parent_id,omitempty"`
	IdentityID    string    `json:"identity_id"`
	SchemaVersion int       `json:"schema_version"`
	Phase         string    `json:"phase"`
	Verification  string    `json:"verification,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventRecord is one persisted integration event.
type EventRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	VersionID   string    `json:"version_id,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	Seq         int       `json:"seq"`
	EventType   string    `json:"event_type"`
	PayloadJSON string    `json:"payload_json,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionRecord points a session at its active version.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	VersionID string    `json:"version_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// #endregion records

// #region repository
// Repository is the persistence the session service needs.
type Repository interface {
	Load(ctx context.Context, sessionID string) (Loaded, error)
	CommitTurn(ctx context.Context, c TurnCommit) (string, error)
}

// #endregion repository
