package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/integration"
)

// Execer is satisfied by *sql.DB and *sql.Tx, so events can be written
// inside a commit transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// #region entries
// Entries converts a turn's events into rows, preserving order.
func Entries(sessionID, versionID, traceID string, events []integration.Event) ([]EventEntry, error) {
	out := make([]EventEntry, 0, len(events))
	for i, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
		}
		out = append(out, EventEntry{
			SessionID:   sessionID,
			VersionID:   versionID,
			TraceID:     traceID,
			Seq:         i,
			EventType:   string(e.Type),
			PayloadJSON: string(payload),
			CreatedAt:   e.At,
		})
	}
	return out, nil
}

// #endregion entries

// #region log-events
// LogEvent writes one entry to the integration_events table.
func LogEvent(ctx context.Context, db Execer, entry EventEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO integration_events (session_id, version_id, trace_id, seq, event_type, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		nullIfEmpty(entry.VersionID),
		nullIfEmpty(entry.TraceID),
		entry.Seq,
		entry.EventType,
		nullIfEmpty(entry.PayloadJSON),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// LogEvents writes entries in order and stops at the first failure.
func LogEvents(ctx context.Context, db Execer, entries []EventEntry) error {
	for _, e := range entries {
		if err := LogEvent(ctx, db, e); err != nil {
			return err
		}
	}
	return nil
}

// #endregion log-events

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
