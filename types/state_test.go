package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in     string
		want   Mode
		wantOK bool
	}{
		{in: "EditMode", want: ModeEditMode, wantOK: true},
		{in: "editmode", want: ModeEditMode, wantOK: true},
		{in: "edit", want: ModeEditMode, wantOK: true},
		{in: " PlayMode ", want: ModePlayMode, wantOK: true},
		{in: "play", want: ModePlayMode, wantOK: true},
		{in: "all", wantOK: false},
		{in: "", wantOK: false},
		{in: "bogus", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseMode(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunStateTerminal(t *testing.T) {
	terminal := []RunState{RunStateCompleted, RunStateFailed, RunStateCanceled, RunStateFaulted}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	live := []RunState{RunStateQueued, RunStateRunning, RunStateCancelling}
	for _, s := range live {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestNormalizeResultState(t *testing.T) {
	tests := []struct {
		in   string
		want RunState
	}{
		{in: "Passed", want: RunStateCompleted},
		{in: "Failed", want: RunStateFailed},
		{in: "failure", want: RunStateFailed},
		{in: "Error", want: RunStateFailed},
		{in: "Cancelled", want: RunStateCanceled},
		{in: "canceled", want: RunStateCanceled},
		{in: "Faulted", want: RunStateFaulted},
		// Unrecognized engine states must not turn a finished run into an error
		{in: "Inconclusive", want: RunStateCompleted},
		{in: "", want: RunStateCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeResultState(tt.in))
		})
	}
}

func TestIsFailedTestState(t *testing.T) {
	assert.True(t, IsFailedTestState("Failed"))
	assert.True(t, IsFailedTestState("failed"))
	assert.False(t, IsFailedTestState("Passed"))
	assert.False(t, IsFailedTestState("Skipped"))
	assert.False(t, IsFailedTestState(""))
}
