package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE integration_events (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL,
		version_id   TEXT,
		trace_id     TEXT,
		seq          INTEGER NOT NULL,
		event_type   TEXT NOT NULL,
		payload_json TEXT,
		created_at   TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-event-tests
func TestLogEvent_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := EventEntry{
		SessionID:   "s1",
		VersionID:   "v1",
		TraceID:     "trace-1",
		EventType:   "FAILURE_ALERT",
		PayloadJSON: `{"level":2}`,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogEvent(context.Background(), db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sessionID, eventType, createdAt string
	db.QueryRow("SELECT session_id, event_type, created_at FROM integration_events").Scan(&sessionID, &eventType, &createdAt)
	if sessionID != "s1" || eventType != "FAILURE_ALERT" {
		t.Errorf("unexpected row %q %q", sessionID, eventType)
	}
	if createdAt != "2026-01-01T00:00:00Z" {
		t.Errorf("expected RFC3339 timestamp, got %q", createdAt)
	}
}

func TestLogEvent_NullableFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	err := LogEvent(context.Background(), db, EventEntry{SessionID: "s1", EventType: "STABILITY_WARNING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var versionID, traceID, payload sql.NullString
	var createdAt string
	db.QueryRow("SELECT version_id, trace_id, payload_json, created_at FROM integration_events").
		Scan(&versionID, &traceID, &payload, &createdAt)
	if versionID.Valid || traceID.Valid || payload.Valid {
		t.Error("empty strings should be stored as NULL")
	}
	if createdAt == "" {
		t.Error("zero CreatedAt should be filled in")
	}
}

func TestLogEvent_MissingTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := LogEvent(context.Background(), db, EventEntry{SessionID: "s1", EventType: "X"}); err == nil {
		t.Fatal("expected error without table")
	}
}

// #endregion log-event-tests

// #region entries-tests
func TestEntries_PreservesOrder(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []integration.Event{
		{Type: integration.EventIdentityPhaseChange, At: at, Payload: map[string]string{"to_phase": "SHOCK_LOCK"}},
		{Type: integration.EventStabilityWarning, At: at, Payload: integration.StabilityWarning{SafetyMode: integration.SafetySafe}},
	}
	entries, err := Entries("s1", "v1", "t1", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || entries[0].Seq != 0 || entries[1].Seq != 1 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	var w integration.StabilityWarning
	if err := json.Unmarshal([]byte(entries[1].PayloadJSON), &w); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if w.SafetyMode != integration.SafetySafe {
		t.Fatalf("expected SAFE payload, got %+v", w)
	}

	db := setupDB(t)
	defer db.Close()
	if err := LogEvents(context.Background(), db, entries); err != nil {
		t.Fatalf("log events: %v", err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM integration_events WHERE session_id = 's1'").Scan(&count)
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
}

func TestEntries_BadPayload(t *testing.T) {
	_, err := Entries("s1", "", "", []integration.Event{{Type: "X", Payload: make(chan int)}})
	if err == nil {
		t.Fatal("expected encode error")
	}
}

// #endregion entries-tests
