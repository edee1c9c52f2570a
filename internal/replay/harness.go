package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/danielpatrickdp/continuity-arbiter/internal/state"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

var defaultStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region types

// TurnResult is the outcome of replaying one turn.
type TurnResult struct {
	SessionID     string   `json:"session_id"`
	Index         int      `json:"index"`
	TraceID       string   `json:"trace_id,omitempty"`
	SafetyMode    string   `json:"safety_mode"`
	Phase         string   `json:"phase"`
	Mode          string   `json:"mode"`
	GuardrailMode string   `json:"guardrail_mode"`
	FailureLevel  int      `json:"failure_level"`
	Events        []string `json:"events"`
	Committed     bool     `json:"committed"`
	Mismatches    []string `json:"mismatches,omitempty"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns   int            `json:"total_turns"`
	Commits      int            `json:"commits"`
	Rejected     int            `json:"rejected"`
	BySafetyMode map[string]int `json:"by_safety_mode"`
	Mismatches   int            `json:"mismatches"`
}

// Report is the full replay output, ordered by session then turn.
type Report struct {
	Description string       `json:"description,omitempty"`
	Results     []TurnResult `json:"results"`
	Summary     Summary      `json:"summary"`
}

// #endregion types

// #region replay

// Replay runs every fixture session through a fresh in-memory service.
// Sessions run concurrently; turns within a session run in order with fixed
// timestamps. The first infrastructure error cancels the rest.
func Replay(ctx context.Context, f *Fixture, config session.Config, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := session.NewService(state.NewMemStore(), config, logger)
	start := f.StartAt
	if start.IsZero() {
		start = defaultStart
	}

	perSession := make([][]TurnResult, len(f.Sessions))
	g, gctx := errgroup.WithContext(ctx)
	for i, fs := range f.Sessions {
		g.Go(func() error {
			results, err := replaySession(gctx, svc, fs, start)
			if err != nil {
				return fmt.Errorf("session %s: %w", fs.SessionID, err)
			}
			perSession[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	var results []TurnResult
	for _, rs := range perSession {
		results = append(results, rs...)
	}
	report := Report{Description: f.Description, Results: results, Summary: Summarize(results)}
	logger.Info("replay finished",
		zap.Int("sessions", len(f.Sessions)),
		zap.Int("turns", report.Summary.TotalTurns),
		zap.Int("mismatches", report.Summary.Mismatches))
	return report, nil
}

func replaySession(ctx context.Context, svc *session.Service, fs FixtureSession, start time.Time) ([]TurnResult, error) {
	results := make([]TurnResult, 0, len(fs.Turns))
	for i, in := range fs.Turns {
		if in.At.IsZero() {
			in.At = start.Add(time.Duration(i) * time.Minute)
		}
		if in.TraceID == "" {
			in.TraceID = fmt.Sprintf("%s-%03d", fs.SessionID, i)
		}
		out, err := svc.ProcessTurn(ctx, fs.SessionID, in)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		r := TurnResult{
			SessionID:     fs.SessionID,
			Index:         i,
			TraceID:       in.TraceID,
			SafetyMode:    string(out.Result.SafetyMode),
			Phase:         string(out.Result.Snapshot.IdentityPhase),
			Mode:          string(out.Result.Subjectivity.Mode),
			GuardrailMode: string(out.Guardrail.Mode),
			FailureLevel:  out.Result.Failure.Level,
			Committed:     out.Committed,
		}
		for _, e := range out.Result.Events {
			r.Events = append(r.Events, string(e.Type))
		}
		if i < len(fs.Expected) {
			r.Mismatches = compare(fs.Expected[i], r)
		}
		results = append(results, r)
	}
	return results, nil
}

func compare(want Expectation, got TurnResult) []string {
	var out []string
	check := func(field, want, got string) {
		if want != "" && want != got {
			out = append(out, fmt.Sprintf("%s: want %s, got %s", field, want, got))
		}
	}
	check("safety_mode", want.SafetyMode, got.SafetyMode)
	check("phase", want.Phase, got.Phase)
	check("mode", want.Mode, got.Mode)
	check("guardrail_mode", want.GuardrailMode, got.GuardrailMode)
	if want.Committed != nil && *want.Committed != got.Committed {
		out = append(out, fmt.Sprintf("committed: want %v, got %v", *want.Committed, got.Committed))
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []TurnResult) Summary {
	s := Summary{TotalTurns: len(results), BySafetyMode: make(map[string]int)}
	for _, r := range results {
		if r.Committed {
			s.Commits++
		} else {
			s.Rejected++
		}
		s.BySafetyMode[r.SafetyMode]++
		s.Mismatches += len(r.Mismatches)
	}
	return s
}

// MismatchLines flattens every mismatch into "session#turn: detail" lines.
func MismatchLines(r Report) []string {
	var out []string
	for _, t := range r.Results {
		for _, m := range t.Mismatches {
			out = append(out, fmt.Sprintf("%s#%d: %s", t.SessionID, t.Index, m))
		}
	}
	sort.Strings(out)
	return out
}

// #endregion replay
