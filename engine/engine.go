// Package engine defines the boundary to the external test-execution engine.
// The engine enumerates tests as a hierarchical tree and executes filtered
// subsets asynchronously, reporting progress through callbacks that may
// arrive on any goroutine.
package engine

import "context"

// Node is one node of the engine's hierarchical test tree. Leaves are
// individual tests; inner nodes are fixtures, namespaces or assemblies.
type Node struct {
	Name        string
	FullName    string
	HasChildren bool
	Children    []*Node
}

// TestResult is the raw per-node outcome delivered by the engine during a
// run. Only leaf nodes (HasChildren == false) carry a pass/fail/skip state
// meaningful to a run summary.
type TestResult struct {
	Name            string
	FullName        string
	HasChildren     bool
	State           string
	DurationSeconds float64
	Message         string
	StackTrace      string
	Output          string
}

// AggregateCounts are the engine's own top-level counts for a finished run.
type AggregateCounts struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// AggregateResult is the engine's top-level summary of a finished run. A nil
// AggregateResult means the engine finished without any usable summary (an
// engine-side internal failure). Counts may be nil even when the aggregate
// is present; the orchestrator then derives counts from the buffered leaf
// outcomes.
type AggregateResult struct {
	ResultState     string
	DurationSeconds float64
	Counts          *AggregateCounts
}

// Filter is the engine's run filter specification. A nil axis means
// "unfiltered on this axis"; no axis ever defaults to "match nothing".
type Filter struct {
	Mode          string
	TestNames     []string
	GroupNames    []string
	CategoryNames []string
	AssemblyNames []string
}

// Callbacks is the interface the orchestrator registers to observe a run.
// Callbacks for a given run arrive in engine-defined order (RunStarted, zero
// or more TestFinished, RunFinished) but on unpredictable goroutines.
type Callbacks interface {
	RunStarted(root *Node)
	TestFinished(result TestResult)
	RunFinished(aggregate *AggregateResult)
}

// Engine is the external test-discovery/execution capability this service
// orchestrates. Implementations must be safe for concurrent use.
type Engine interface {
	// RetrieveTree asks the engine for its current test tree in the given
	// mode. The call is asynchronous and engine-driven: onReady may be
	// invoked later on another goroutine, or never. A synchronous error
	// means the request could not be issued at all.
	RetrieveTree(ctx context.Context, mode string, onReady func(root *Node)) error

	// Execute starts a filtered run and returns the engine-assigned run id.
	// Failures are reported synchronously; progress arrives via Callbacks.
	Execute(filter Filter) (string, error)

	// CancelRun asks the engine to cancel a run. The engine may decline.
	CancelRun(runID string) bool

	// Busy reports whether the engine is occupied with a prerequisite step
	// (e.g. compiling) that makes starting a run unsafe.
	Busy() bool

	// Subscribe registers callbacks for run progress. The returned release
	// function unregisters them and must be called on shutdown.
	Subscribe(cb Callbacks) (release func(), err error)
}
