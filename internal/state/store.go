package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/logging"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS identity_versions (
	version_id     TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	parent_id      TEXT,
	identity_id    TEXT NOT NULL,
	schema_version INTEGER NOT NULL,
	phase          TEXT NOT NULL,
	state_json     TEXT NOT NULL,
	verify_json    TEXT,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES identity_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_identity_versions_session ON identity_versions(session_id, created_at);

CREATE TABLE IF NOT EXISTS engine_memory (
	version_id   TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	memory_json  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES identity_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_identity (
	session_id   TEXT PRIMARY KEY,
	version_id   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES identity_versions(version_id)
);

CREATE TABLE IF NOT EXISTS identity_snapshots (
	version_id    TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	core_hash     TEXT,
	snapshot_json TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES identity_versions(version_id)
);

CREATE TABLE IF NOT EXISTS integration_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	version_id   TEXT,
	trace_id     TEXT,
	seq          INTEGER NOT NULL,
	event_type   TEXT NOT NULL,
	payload_json TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES identity_versions(version_id)
);

CREATE INDEX IF NOT EXISTS idx_integration_events_session ON integration_events(session_id, id);
`

// #endregion schema

// #region store-struct
// Store manages versioned per-session identity state in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. A nil logger is
// replaced by a no-op.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, logger: logger.Named("store")}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region load
// Load reads a session's active version and its engine memory. Sessions that
// never committed return ErrNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (Loaded, error) {
	var versionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id FROM active_identity WHERE session_id = ?`, sessionID,
	).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Loaded{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Loaded{}, fmt.Errorf("get active: %w", err)
	}
	return s.LoadVersion(ctx, versionID)
}

// LoadVersion reads a specific version. The state goes through
// temporal.Decode, so out-of-range fields are clamped and a schema mismatch
// is flagged rather than rejected.
func (s *Store) LoadVersion(ctx context.Context, versionID string) (Loaded, error) {
	var sessionID, stateJSON string
	var memoryJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT v.session_id, v.state_json, m.memory_json
		 FROM identity_versions v LEFT JOIN engine_memory m ON m.version_id = v.version_id
		 WHERE v.version_id = ?`, versionID,
	).Scan(&sessionID, &stateJSON, &memoryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Loaded{}, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return Loaded{}, fmt.Errorf("get version %s: %w", versionID, err)
	}

	st, err := decodeState([]byte(stateJSON))
	if err != nil {
		return Loaded{}, fmt.Errorf("version %s: %w", versionID, err)
	}
	loaded := Loaded{SessionID: sessionID, VersionID: versionID, State: st}
	if memoryJSON.Valid {
		if err := json.Unmarshal([]byte(memoryJSON.String), &loaded.Memory); err != nil {
			return Loaded{}, fmt.Errorf("unmarshal memory %s: %w", versionID, err)
		}
	}
	return loaded, nil
}

// #endregion load

// #region commit-turn
// CommitTurn inserts the new version, its memory, snapshot and events, and
// moves the active pointer, all in one transaction. Returns the new version id.
func (s *Store) CommitTurn(ctx context.Context, c TurnCommit) (string, error) {
	if c.State == nil {
		return "", fmt.Errorf("commit turn: nil state")
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	at := c.At.UTC().Format(time.RFC3339Nano)
	versionID := uuid.New().String()

	stateJSON, err := c.State.Encode()
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	memoryJSON, err := json.Marshal(c.Memory)
	if err != nil {
		return "", fmt.Errorf("marshal memory: %w", err)
	}
	snapshotJSON, err := json.Marshal(c.Snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	entries, err := logging.Entries(c.SessionID, versionID, c.TraceID, c.Events)
	if err != nil {
		return "", fmt.Errorf("encode events: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var active sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT version_id FROM active_identity WHERE session_id = ?`, c.SessionID,
	).Scan(&active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get active: %w", err)
	}
	if active.String != c.ParentID {
		return "", fmt.Errorf("commit %s onto %s (active %s): %w", c.SessionID, c.ParentID, active.String, ErrConflict)
	}

	var parentPtr interface{}
	if c.ParentID != "" {
		parentPtr = c.ParentID
	}
	var verifyPtr interface{}
	if c.Verification != "" {
		verifyPtr = c.Verification
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identity_versions (version_id, session_id, parent_id, identity_id, schema_version, phase, state_json, verify_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		versionID, c.SessionID, parentPtr, c.State.IdentityID, c.State.SchemaVersion,
		string(c.State.Phase), string(stateJSON), verifyPtr, at,
	)
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO engine_memory (version_id, session_id, memory_json) VALUES (?, ?, ?)`,
		versionID, c.SessionID, string(memoryJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identity_snapshots (version_id, session_id, core_hash, snapshot_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		versionID, c.SessionID, c.Snapshot.CoreHash, string(snapshotJSON), at,
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	if err := logging.LogEvents(ctx, tx, entries); err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_identity (session_id, version_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET version_id = excluded.version_id, updated_at = excluded.updated_at`,
		c.SessionID, versionID, at,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("turn committed",
		zap.String("session_id", c.SessionID),
		zap.String("version_id", versionID),
		zap.String("phase", string(c.State.Phase)),
		zap.Int("events", len(entries)))
	return versionID, nil
}

// #endregion commit-turn

// #region rollback
// Rollback points a session at one of its earlier versions. The engine memory
// stored with that version comes back with it.
func (s *Store) Rollback(ctx context.Context, sessionID, targetVersionID string) error {
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM identity_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != sessionID) {
		return fmt.Errorf("version %s in session %s: %w", targetVersionID, sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE active_identity SET version_id = ?, updated_at = ? WHERE session_id = ?`,
		targetVersionID, time.Now().UTC().Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	s.logger.Info("session rolled back", zap.String("session_id", sessionID), zap.String("version_id", targetVersionID))
	return nil
}

// #endregion rollback

// #region list
// ListVersions returns a session's most recent versions, newest first.
func (s *Store) ListVersions(ctx context.Context, sessionID string, limit int) ([]VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, session_id, parent_id, identity_id, schema_version, phase, verify_json, created_at
		 FROM identity_versions WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var parentID, verify sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.VersionID, &rec.SessionID, &parentID, &rec.IdentityID,
			&rec.SchemaVersion, &rec.Phase, &verify, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.ParentID = parentID.String
		rec.Verification = verify.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListEvents returns a session's most recent events, newest first.
func (s *Store) ListEvents(ctx context.Context, sessionID string, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, version_id, trace_id, seq, event_type, payload_json, created_at
		 FROM integration_events WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var rec EventRecord
		var versionID, traceID, payload sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &versionID, &traceID, &rec.Seq,
			&rec.EventType, &payload, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.VersionID = versionID.String
		rec.TraceID = traceID.String
		rec.PayloadJSON = payload.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Sessions lists every session with an active version.
func (s *Store) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, version_id, updated_at FROM active_identity ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var updatedStr string
		if err := rows.Scan(&rec.SessionID, &rec.VersionID, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Snapshot returns the identity snapshot JSON stored with a version.
func (s *Store) Snapshot(ctx context.Context, versionID string) (string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM identity_snapshots WHERE version_id = ?`, versionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("snapshot %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get snapshot: %w", err)
	}
	return raw, nil
}

// #endregion list

func decodeState(raw []byte) (*temporal.State, error) {
	st, err := temporal.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}
