package types

import (
	"fmt"
	"time"
)

// Summary aggregates the outcome counts for one run.
type Summary struct {
	Total           int     `json:"total"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	DurationSeconds float64 `json:"durationSeconds"`
	ResultState     string  `json:"resultState"`
}

// TestOutcome is the outcome of a single leaf test reported during a run.
type TestOutcome struct {
	Name            string  `json:"name"`
	FullName        string  `json:"fullName"`
	State           string  `json:"state"`
	DurationSeconds float64 `json:"durationSeconds"`
	Message         string  `json:"message,omitempty"`
	StackTrace      string  `json:"stackTrace,omitempty"`
	Output          string  `json:"output,omitempty"`
}

// RunResult is the immutable materialized result of one run. It is created
// exactly once, at the run-finished callback, and returned verbatim on
// subsequent queries.
type RunResult struct {
	RunID   string        `json:"runId"`
	Mode    Mode          `json:"mode"`
	State   RunState      `json:"state"`
	Summary Summary       `json:"summary"`
	Tests   []TestOutcome `json:"results"`
}

// Total returns the total test count from the summary.
func (r *RunResult) Total() int { return r.Summary.Total }

// Passed returns the passed test count from the summary.
func (r *RunResult) Passed() int { return r.Summary.Passed }

// Failed returns the failed test count from the summary.
func (r *RunResult) Failed() int { return r.Summary.Failed }

// Skipped returns the skipped test count from the summary.
func (r *RunResult) Skipped() int { return r.Summary.Skipped }

// FailedTests returns the outcomes whose state label counts as a failure, in
// report order.
func (r *RunResult) FailedTests() []TestOutcome {
	var failed []TestOutcome
	for _, t := range r.Tests {
		if IsFailedTestState(t.State) {
			failed = append(failed, t)
		}
	}
	return failed
}

// SummaryMessage renders a one-line human description of the run outcome.
func (r *RunResult) SummaryMessage() string {
	s := r.Summary
	state := s.ResultState
	if state == "" {
		state = "Unknown"
	}
	if s.Total == 0 && s.Passed == 0 && s.Failed == 0 && s.Skipped == 0 {
		return fmt.Sprintf("Run '%s' finished with state %s.", r.RunID, state)
	}
	return fmt.Sprintf("Run '%s' finished with state %s: %d/%d passed, %d failed, %d skipped.",
		r.RunID, state, s.Passed, s.Total, s.Failed, s.Skipped)
}

// RunStatus is a point-in-time snapshot of a managed run.
type RunStatus struct {
	RunID          string     `json:"runId"`
	Mode           Mode       `json:"mode"`
	State          RunState   `json:"state"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ElapsedSeconds float64    `json:"elapsedSeconds"`
	Summary        *Summary   `json:"summary,omitempty"`
}

// CatalogEntry is one leaf test discovered from the engine's test tree.
type CatalogEntry struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Path     string `json:"path"`
	Mode     Mode   `json:"mode"`
}
