// Package results turns the engine's raw per-test and per-run outcomes into
// the stable, serializable run results the rest of the service hands out.
package results

import (
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/types"
)

// Materialize builds the immutable RunResult for a finished run.
//
// When the engine supplied its own aggregate counts they are trusted as-is:
// the engine's total may legitimately include outcomes (e.g. inconclusive)
// that leaf-derived counting would miss. When the aggregate or its counts
// are absent the summary is derived by folding the buffered leaf outcomes.
func Materialize(runID string, mode types.Mode, state types.RunState, agg *engine.AggregateResult, leaves []engine.TestResult) *types.RunResult {
	outcomes := make([]types.TestOutcome, 0, len(leaves))
	for _, leaf := range leaves {
		outcomes = append(outcomes, sanitizeOutcome(leaf))
	}

	summary := deriveSummary(outcomes)
	if agg != nil {
		if agg.Counts != nil {
			summary.Total = agg.Counts.Total
			summary.Passed = agg.Counts.Passed
			summary.Failed = agg.Counts.Failed
			summary.Skipped = agg.Counts.Skipped
		}
		if agg.DurationSeconds > 0 {
			summary.DurationSeconds = agg.DurationSeconds
		}
		if agg.ResultState != "" {
			summary.ResultState = agg.ResultState
		}
	}
	if summary.ResultState == "" {
		summary.ResultState = resultStateLabel(state, summary)
	}

	return &types.RunResult{
		RunID:   runID,
		Mode:    mode,
		State:   state,
		Summary: summary,
		Tests:   outcomes,
	}
}

// deriveSummary folds leaf outcomes into counts. Total is the sum of the
// three counted states only; duration is the sum of per-leaf durations.
func deriveSummary(outcomes []types.TestOutcome) types.Summary {
	var s types.Summary
	for _, t := range outcomes {
		switch strings.ToLower(t.State) {
		case "passed":
			s.Passed++
		case "failed":
			s.Failed++
		case "skipped":
			s.Skipped++
		}
		s.DurationSeconds += t.DurationSeconds
	}
	s.Total = s.Passed + s.Failed + s.Skipped
	return s
}

func resultStateLabel(state types.RunState, summary types.Summary) string {
	switch state {
	case types.RunStateCanceled:
		return "Cancelled"
	case types.RunStateFaulted:
		return "Faulted"
	default:
		if summary.Failed > 0 {
			return types.TestStateFailed
		}
		return types.TestStatePassed
	}
}

// sanitizeOutcome copies a raw engine outcome, stripping ANSI escapes from
// free-text fields before they are stored or logged.
func sanitizeOutcome(leaf engine.TestResult) types.TestOutcome {
	return types.TestOutcome{
		Name:            leaf.Name,
		FullName:        leaf.FullName,
		State:           leaf.State,
		DurationSeconds: leaf.DurationSeconds,
		Message:         stripansi.Strip(leaf.Message),
		StackTrace:      stripansi.Strip(leaf.StackTrace),
		Output:          stripansi.Strip(leaf.Output),
	}
}
