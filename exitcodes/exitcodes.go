// Package exitcodes defines the standard exit codes used by the orchestrator CLI.
package exitcodes

// Exit code constants used by the one-shot run mode:
//
// * Success (0): Used when the run finishes with every test passing
// * TestFailure (1): Used when one or more tests fail
// * RuntimeErr (2): Used for runtime errors such as engine faults or timeouts
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
