package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/danielpatrickdp/continuity-arbiter/internal/state"
	"github.com/spf13/cobra"
)

// #region inspect

type inspectOptions struct {
	dbPath    string
	sessionID string
	last      int
	events    int
	jsonOut   bool
}

type sessionView struct {
	SessionID string                `json:"session_id"`
	VersionID string                `json:"version_id"`
	Phase     string                `json:"phase"`
	Budget    float64               `json:"stability_budget"`
	CoreHash  string                `json:"core_hash"`
	Integrity string                `json:"integrity,omitempty"`
	Snapshot  json.RawMessage       `json:"identity_snapshot,omitempty"`
	Versions  []state.VersionRecord `json:"versions"`
	Events    []state.EventRecord   `json:"events"`
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show sessions, versions and events stored in a database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.openStore(opts.dbPath, nil)
			if err != nil {
				return err
			}
			defer store.Close()

			if opts.sessionID == "" {
				return runSessionList(cmd, store, opts)
			}
			return runSessionDetail(cmd, store, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database path (defaults to store.path)")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session to show; lists sessions when empty")
	cmd.Flags().IntVar(&opts.last, "last", 20, "show N most recent versions")
	cmd.Flags().IntVar(&opts.events, "events", 20, "show N most recent events")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

func runSessionList(cmd *cobra.Command, store *state.Store, opts *inspectOptions) error {
	sessions, err := store.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if opts.jsonOut {
		return printJSON(out, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no sessions found")
		return nil
	}
	fmt.Fprintf(out, "%-24s  %-10s  %s\n", "Session", "Version", "Updated")
	for _, s := range sessions {
		fmt.Fprintf(out, "%-24s  %-10s  %s\n", s.SessionID, shortID(s.VersionID), s.UpdatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func runSessionDetail(cmd *cobra.Command, store *state.Store, opts *inspectOptions) error {
	ctx := cmd.Context()
	loaded, err := store.Load(ctx, opts.sessionID)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("session %q has no committed version", opts.sessionID)
	}
	if err != nil {
		return err
	}
	versions, err := store.ListVersions(ctx, opts.sessionID, opts.last)
	if err != nil {
		return err
	}
	events, err := store.ListEvents(ctx, opts.sessionID, opts.events)
	if err != nil {
		return err
	}
	snapshot, err := store.Snapshot(ctx, loaded.VersionID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return err
	}

	st := loaded.State
	view := sessionView{
		SessionID: loaded.SessionID,
		VersionID: loaded.VersionID,
		Phase:     string(st.Phase),
		Budget:    st.StabilityBudget,
		CoreHash:  st.Attractor.CoreHash,
		Versions:  versions,
		Events:    events,
	}
	if st.Integrity.SchemaMismatch {
		view.Integrity = "schema_mismatch"
	}
	if snapshot != "" {
		view.Snapshot = json.RawMessage(snapshot)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		return printJSON(out, view)
	}
	printSessionDetail(out, view)
	return nil
}

// #endregion inspect

// #region output

func printSessionDetail(w io.Writer, v sessionView) {
	fmt.Fprintf(w, "Session:   %s\n", v.SessionID)
	fmt.Fprintf(w, "Version:   %s\n", v.VersionID)
	fmt.Fprintf(w, "Phase:     %s\n", v.Phase)
	fmt.Fprintf(w, "Budget:    %.4f\n", v.Budget)
	fmt.Fprintf(w, "Core hash: %s\n", shortID(v.CoreHash))
	if v.Integrity != "" {
		fmt.Fprintf(w, "Integrity: %s\n", v.Integrity)
	}
	if len(v.Snapshot) > 0 {
		var snap struct {
			SubjectivityMode   string `json:"subjectivity_mode"`
			ValueVectorHash    string `json:"value_vector_hash"`
			NarrativeStateHash string `json:"narrative_state_hash"`
		}
		if err := json.Unmarshal(v.Snapshot, &snap); err == nil {
			fmt.Fprintf(w, "Mode:      %s\n", snap.SubjectivityMode)
			fmt.Fprintf(w, "Value:     %s\n", shortID(snap.ValueVectorHash))
			fmt.Fprintf(w, "Narrative: %s\n", shortID(snap.NarrativeStateHash))
		}
	}

	fmt.Fprintf(w, "\n%-10s  %-10s  %-16s  %s\n", "Version", "Parent", "Phase", "Created")
	for _, r := range v.Versions {
		parent := "—"
		if r.ParentID != "" {
			parent = shortID(r.ParentID)
		}
		fmt.Fprintf(w, "%-10s  %-10s  %-16s  %s\n", shortID(r.VersionID), parent, r.Phase, r.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}

	fmt.Fprintf(w, "\n%-10s  %3s  %-26s  %s\n", "Version", "Seq", "Event", "Trace")
	for _, e := range v.Events {
		fmt.Fprintf(w, "%-10s  %3d  %-26s  %s\n", shortID(e.VersionID), e.Seq, e.EventType, e.TraceID)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
