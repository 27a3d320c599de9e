package orchestrator

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/enginelab/test-orchestrator/types"
)

// printResultsTable prints the outcome of a finished run to the console.
func printResultsTable(result *types.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Test Run Results %s (%s)", result.RunID, formatSeconds(result.Summary.DurationSeconds)))

	t.AppendHeader(table.Row{
		"Test", "Duration", "Passed", "Failed", "Skipped", "Result", "Message",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Message", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, tc := range result.Tests {
		t.AppendRow(table.Row{
			tc.FullName,
			formatSeconds(tc.DurationSeconds),
			boolToInt(strings.EqualFold(tc.State, types.TestStatePassed)),
			boolToInt(types.IsFailedTestState(tc.State)),
			boolToInt(strings.EqualFold(tc.State, types.TestStateSkipped)),
			resultCell(tc.State),
			firstLine(tc.Message),
		})
	}

	switch result.State {
	case types.RunStateCompleted:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.RunStateCanceled:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		formatSeconds(result.Summary.DurationSeconds),
		result.Summary.Passed,
		result.Summary.Failed,
		result.Summary.Skipped,
		string(result.State),
		"",
	})

	t.Render()
}

// Helper function to convert bool to int
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// resultCell returns a marked string representing one test's outcome
func resultCell(state string) string {
	switch {
	case strings.EqualFold(state, types.TestStatePassed):
		return "✓ pass"
	case strings.EqualFold(state, types.TestStateSkipped):
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format a duration in seconds with 1 decimal place
func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}

// firstLine trims a message down to its first line for table display
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return s[:idx]
	}
	return s
}
