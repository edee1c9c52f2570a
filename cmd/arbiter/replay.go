package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danielpatrickdp/continuity-arbiter/internal/replay"
	"github.com/spf13/cobra"
)

var errReplayDiverged = errors.New("replay diverged from expectations")

func newReplayCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a fixture through in-memory sessions and compare expectations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			report, err := replay.Replay(cmd.Context(), f, cfg.SessionConfig(), logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}
			if report.Summary.Mismatches > 0 {
				return errReplayDiverged
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the report as JSON")
	return cmd
}

// #region output

func printReport(w io.Writer, r replay.Report) {
	if r.Description != "" {
		fmt.Fprintf(w, "%s\n\n", r.Description)
	}
	fmt.Fprintf(w, "%-16s| %4s| %-8s| %-16s| %-12s| %-22s| %s\n",
		"Session", "Turn", "Safety", "Phase", "Mode", "Guardrail", "Match")
	fmt.Fprintf(w, "%-16s+%5s+%-9s+%-17s+%-13s+%-23s+%s\n",
		strings.Repeat("-", 16), "-----", "---------", strings.Repeat("-", 17),
		strings.Repeat("-", 13), strings.Repeat("-", 23), "------")
	for _, t := range r.Results {
		match := "OK"
		if len(t.Mismatches) > 0 {
			match = "DIFF"
		}
		if !t.Committed {
			match += " (rejected)"
		}
		fmt.Fprintf(w, "%-16s| %4d| %-8s| %-16s| %-12s| %-22s| %s\n",
			t.SessionID, t.Index, t.SafetyMode, t.Phase, t.Mode, t.GuardrailMode, match)
	}

	s := r.Summary
	fmt.Fprintf(w, "\nSummary: %d turns, %d committed, %d rejected, %d mismatches\n",
		s.TotalTurns, s.Commits, s.Rejected, s.Mismatches)
	for _, line := range replay.MismatchLines(r) {
		fmt.Fprintf(w, "  %s\n", line)
	}
}

// #endregion output
