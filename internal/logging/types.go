package logging

import "time"

// #region event-entry
// EventEntry is a single row in the integration_events table.
type EventEntry struct {
	SessionID   string
	VersionID   string
	TraceID     string
	Seq         int // position within the turn's event list
	EventType   string
	PayloadJSON string
	CreatedAt   time.Time
}

// #endregion event-entry
