// Package types contains shared types used across the test orchestration service
package types

import "strings"

// Mode represents the engine execution mode for a test.
type Mode string

// String implements the Stringer interface for Mode
func (m Mode) String() string {
	return string(m)
}

// Mode enum values
const (
	ModeEditMode Mode = "EditMode"
	ModePlayMode Mode = "PlayMode"
)

// AllModes returns every known execution mode, in a stable order.
func AllModes() []Mode {
	return []Mode{ModeEditMode, ModePlayMode}
}

// ParseMode normalizes a caller-supplied mode string. An empty string or
// "all" selects no single mode and returns ok=false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "editmode", "edit":
		return ModeEditMode, true
	case "playmode", "play":
		return ModePlayMode, true
	default:
		return "", false
	}
}

// RunState represents the lifecycle state of a managed run.
type RunState string

const (
	RunStateQueued     RunState = "Queued"
	RunStateRunning    RunState = "Running"
	RunStateCancelling RunState = "Cancelling"
	RunStateCompleted  RunState = "Completed"
	RunStateFailed     RunState = "Failed"
	RunStateCanceled   RunState = "Canceled"
	RunStateFaulted    RunState = "Faulted"
)

// Terminal reports whether no further transitions can occur from s.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateCanceled, RunStateFaulted:
		return true
	default:
		return false
	}
}

// NormalizeResultState maps an engine-reported result-state string onto the
// closed RunState enumeration. Engines disagree on spelling ("Cancelled" vs
// "Canceled"), and new engine versions may report states we have never seen;
// unrecognized states normalize to Completed so version drift does not turn
// a finished run into an error.
func NormalizeResultState(s string) RunState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "failed", "failure", "error":
		return RunStateFailed
	case "cancelled", "canceled":
		return RunStateCanceled
	case "faulted":
		return RunStateFaulted
	default:
		return RunStateCompleted
	}
}

// Leaf outcome state labels reported by the engine for individual tests.
const (
	TestStatePassed  = "Passed"
	TestStateFailed  = "Failed"
	TestStateSkipped = "Skipped"
)

// IsFailedTestState reports whether a per-test state label counts as a
// failure, case-insensitively.
func IsFailedTestState(s string) bool {
	return strings.EqualFold(s, TestStateFailed)
}
