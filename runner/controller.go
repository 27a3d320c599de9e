// Package runner contains the run lifecycle controller: the state machine
// that drives one test run from submission through engine callbacks to a
// terminal state, and the discovery walker that flattens the engine's test
// tree.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/metrics"
	"github.com/enginelab/test-orchestrator/registry"
	"github.com/enginelab/test-orchestrator/results"
	"github.com/enginelab/test-orchestrator/types"
)

// DefaultTreeWait bounds how long discovery waits for the engine to deliver
// a mode's test tree before treating it as empty.
const DefaultTreeWait = 30 * time.Second

// Config holds configuration for creating a controller.
type Config struct {
	Engine   engine.Engine
	Registry *registry.Registry
	Log      log.Logger

	// TreeWait overrides DefaultTreeWait; useful in tests.
	TreeWait time.Duration

	// Sink, when set, receives every materialized run result.
	Sink *results.FileSink
}

// Controller is the orchestration core. Every public operation and every
// engine callback may run concurrently with every other; shared run state
// lives in the registry and is only touched inside its critical section.
type Controller struct {
	engine   engine.Engine
	registry *registry.Registry
	log      log.Logger
	treeWait time.Duration
	sink     *results.FileSink
	tracer   trace.Tracer

	// startSem serializes discovery calls and the start-run critical
	// section against each other, so a slow discovery cannot race a start's
	// view of "is a run active" and at most one walker's path-building
	// state is live at a time.
	startSem *semaphore.Weighted

	// buffer collects leaf outcomes for the run tagged by bufferRunID.
	// Leaves reported while no started run is tagged are dropped.
	bufMu       sync.Mutex
	buffer      []engine.TestResult
	bufferRunID string

	// The engine gives no happens-before edge between Execute returning
	// and the run's callbacks firing. While a registration is in flight
	// (reservation taken, run id not yet recorded) callbacks are parked
	// under cbMu and replayed in order once the run is recorded.
	cbMu    sync.Mutex
	parking bool
	parked  []func()

	release func() // engine callback unsubscription
}

// RunHandle is returned synchronously from StartRun. The caller may wait on
// the completion, or discard the handle and re-poll by run id.
type RunHandle struct {
	RunID         string
	StartedNewRun bool
	completion    *registry.Completion
}

// Completion exposes the one-shot signal resolved when the run finishes.
func (h *RunHandle) Completion() *registry.Completion {
	return h.completion
}

// New creates a controller and subscribes it to the engine's callbacks. The
// caller must Close the controller to release the subscription.
func New(cfg Config) (*Controller, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.TreeWait <= 0 {
		cfg.TreeWait = DefaultTreeWait
	}

	c := &Controller{
		engine:   cfg.Engine,
		registry: cfg.Registry,
		log:      cfg.Log,
		treeWait: cfg.TreeWait,
		sink:     cfg.Sink,
		tracer:   otel.Tracer("test-orchestrator/runner"),
		startSem: semaphore.NewWeighted(1),
	}

	release, err := cfg.Engine.Subscribe(c)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to engine callbacks: %w", err)
	}
	c.release = release
	return c, nil
}

// Close releases the engine subscription. An in-flight completion is
// resolved with a nil result so no waiter is left orphaned; the run itself
// is left to the engine, since cancellation is cooperative and may be
// rejected anyway.
func (c *Controller) Close() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
	if pending := c.registry.Pending(); pending != nil {
		c.log.Warn("shutting down with a run in flight; releasing waiters", "run_id", c.registry.ActiveID())
		pending.Resolve(nil)
	}
}

// StartRun validates that no conflicting run is active, builds the engine
// filter, invokes the engine and registers the returned run id. When a run
// is already in flight the handle attaches to it instead; at most one run is
// in flight at a time.
func (c *Controller) StartRun(ctx context.Context, req types.RunRequest) (*RunHandle, error) {
	ctx, span := c.tracer.Start(ctx, "StartRun")
	defer span.End()

	if err := c.startSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.startSem.Release(1)

	return c.startLocked(req)
}

// startLocked runs the start-run critical section. The caller must hold
// startSem.
func (c *Controller) startLocked(req types.RunRequest) (*RunHandle, error) {
	activeID, completion, inFlight, err := c.registry.AttachInfo()
	if err != nil {
		// An in-flight completion without an active run is an integration
		// bug; abort loudly rather than hand out a handle nobody can use.
		metrics.RecordError("registry_inconsistent")
		return nil, fmt.Errorf("cannot start run: %w", err)
	}
	if inFlight {
		c.log.Info("run already in progress; attaching", "run_id", activeID)
		return &RunHandle{RunID: activeID, StartedNewRun: false, completion: completion}, nil
	}

	if c.engine.Busy() {
		return nil, ErrEngineBusy
	}

	completion = c.registry.Reserve()
	c.beginRegistration()
	runID, err := c.engine.Execute(BuildFilter(req))
	if err != nil {
		c.abortRegistration()
		c.registry.RollbackReservation(completion)
		metrics.RecordError("engine_execute_rejected")
		return nil, &EngineRejectedError{Op: "execute", Err: err}
	}

	if _, err := c.registry.RecordNewRun(runID, req); err != nil {
		c.abortRegistration()
		c.registry.RollbackReservation(completion)
		metrics.RecordError("empty_run_id")
		return nil, fmt.Errorf("engine returned an unusable run id: %w", err)
	}
	c.finishRegistration()

	c.log.Info("started test run", "run_id", runID, "mode", req.Mode, "filtered", req.HasFilters())
	metrics.RecordRunStarted(string(req.Mode))
	return &RunHandle{RunID: runID, StartedNewRun: true, completion: completion}, nil
}

// Wait blocks until the handle's run finishes or the bound elapses. On
// timeout the error carries the latest status snapshot so the caller can
// keep polling.
func (c *Controller) Wait(ctx context.Context, handle *RunHandle, timeout time.Duration) (*types.RunResult, error) {
	result, ok := handle.completion.Wait(ctx, timeout)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snapshot, _ := c.registry.Snapshot(handle.RunID, false)
		return nil, &WaitTimeoutError{RunID: handle.RunID, Timeout: timeout, Snapshot: snapshot}
	}
	if result == nil {
		return nil, fmt.Errorf("orchestrator shut down before run %q finished", handle.RunID)
	}
	return result, nil
}

// GetStatus returns a status snapshot for the resolved run. An empty runID
// resolves to the active run, else the most recently completed one.
func (c *Controller) GetStatus(runID string) (types.RunStatus, error) {
	status, ok := c.registry.Snapshot(runID, runID == "")
	if !ok {
		return types.RunStatus{}, &NotFoundError{RunID: runID}
	}
	return status, nil
}

// CancelRun forwards a cancellation request for the resolved run to the
// engine. Cancellation is cooperative: on acceptance the run transitions to
// Cancelling, and the terminal transition still arrives via RunFinished.
func (c *Controller) CancelRun(ctx context.Context, runID string) (types.RunStatus, error) {
	_, span := c.tracer.Start(ctx, "CancelRun")
	defer span.End()

	status, ok := c.registry.Snapshot(runID, runID == "")
	if !ok {
		return types.RunStatus{}, &NotFoundError{RunID: runID}
	}
	if status.State.Terminal() {
		return status, &AlreadyFinishedError{RunID: status.RunID, State: status.State}
	}

	if !c.engine.CancelRun(status.RunID) {
		metrics.RecordError("engine_cancel_rejected")
		return status, &EngineRejectedError{Op: "cancel"}
	}

	c.registry.Update(status.RunID, func(run *registry.Run) {
		if !run.Terminal() {
			run.State = types.RunStateCancelling
		}
	})
	c.log.Info("cancellation requested", "run_id", status.RunID)

	status, _ = c.registry.Snapshot(status.RunID, false)
	return status, nil
}

// GetResult returns the materialized result of the resolved run.
func (c *Controller) GetResult(runID string) (*types.RunResult, error) {
	result, found := c.registry.ResultOf(runID, runID == "")
	if !found {
		return nil, &NotFoundError{RunID: runID}
	}
	if result == nil {
		status, _ := c.registry.Snapshot(runID, runID == "")
		return nil, &NoResultError{RunID: status.RunID}
	}
	return result, nil
}

// GetFailedTests returns the full names of the resolved run's failed tests.
func (c *Controller) GetFailedTests(runID string) ([]string, error) {
	result, err := c.GetResult(runID)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, t := range result.FailedTests() {
		names = append(names, t.FullName)
	}
	return names, nil
}

// RerunFailed starts a new run seeded from the prior run's failed-test full
// names and its mode. A prior run with zero failures is an error and starts
// nothing. The start slot is held across resolving the prior result and
// starting, so a concurrent start cannot change which run the rerun is
// seeded from or attaches to.
func (c *Controller) RerunFailed(ctx context.Context, runID string) (*RunHandle, error) {
	ctx, span := c.tracer.Start(ctx, "RerunFailed")
	defer span.End()

	if err := c.startSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.startSem.Release(1)

	result, err := c.GetResult(runID)
	if err != nil {
		return nil, err
	}
	var failed []string
	for _, t := range result.FailedTests() {
		failed = append(failed, t.FullName)
	}
	if len(failed) == 0 {
		return nil, &NoFailuresError{RunID: result.RunID}
	}
	req := types.NewRunRequest(result.Mode, failed, nil, nil, nil)
	return c.startLocked(req)
}

// beginRegistration parks subsequent callbacks until the run id is
// recorded or the registration is aborted.
func (c *Controller) beginRegistration() {
	c.cbMu.Lock()
	c.parking = true
	c.cbMu.Unlock()
}

// abortRegistration discards parked callbacks; the run they describe was
// never registered.
func (c *Controller) abortRegistration() {
	c.cbMu.Lock()
	c.parking = false
	c.parked = nil
	c.cbMu.Unlock()
}

// finishRegistration replays parked callbacks in arrival order. Replay
// holds cbMu, so a callback landing mid-replay waits in dispatch and then
// proceeds directly, after the backlog.
func (c *Controller) finishRegistration() {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.parking = false
	for _, apply := range c.parked {
		apply()
	}
	c.parked = nil
}

// dispatch applies a callback immediately, or parks it while a
// registration is in flight.
func (c *Controller) dispatch(apply func()) {
	c.cbMu.Lock()
	if c.parking {
		c.parked = append(c.parked, apply)
		c.cbMu.Unlock()
		return
	}
	c.cbMu.Unlock()
	apply()
}

// RunStarted implements engine.Callbacks.
func (c *Controller) RunStarted(root *engine.Node) {
	c.dispatch(func() { c.runStarted(root) })
}

// TestFinished implements engine.Callbacks.
func (c *Controller) TestFinished(result engine.TestResult) {
	c.dispatch(func() { c.testFinished(result) })
}

// RunFinished implements engine.Callbacks.
func (c *Controller) RunFinished(aggregate *engine.AggregateResult) {
	c.dispatch(func() { c.runFinished(aggregate) })
}

// runStarted clears any stale per-test buffer, tags it with the active run
// id, marks the run Running and stamps its start time. Duplicate calls are
// tolerated.
func (c *Controller) runStarted(root *engine.Node) {
	var runID string
	ok := c.registry.UpdateActive(func(run *registry.Run) {
		runID = run.ID
		if run.State == types.RunStateQueued {
			run.State = types.RunStateRunning
			run.StartedAt = time.Now().UTC()
		}
	})
	if !ok {
		c.log.Debug("ignoring RunStarted callback with no active run")
		return
	}

	c.bufMu.Lock()
	c.buffer = nil
	c.bufferRunID = runID
	c.bufMu.Unlock()
	c.log.Debug("run started", "run_id", runID)
}

// testFinished appends leaf outcomes to the per-run buffer; group nodes
// carry no state meaningful to the summary and are ignored. Leaves reported
// while no started run is tagged belong to no run we know and are dropped.
func (c *Controller) testFinished(result engine.TestResult) {
	if result.HasChildren {
		return
	}
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	if c.bufferRunID == "" {
		c.log.Debug("dropping stray leaf outcome", "test", result.FullName)
		return
	}
	c.buffer = append(c.buffer, result)
}

// runFinished is the sole terminal transition point. The result is
// materialized from the engine aggregate when present, or derived from the
// buffered leaves, and the completion signal resolves with it. A callback
// with no registered run is a no-op.
func (c *Controller) runFinished(aggregate *engine.AggregateResult) {
	c.bufMu.Lock()
	leaves := c.buffer
	bufferedFor := c.bufferRunID
	c.buffer = nil
	c.bufferRunID = ""
	c.bufMu.Unlock()

	var runID string
	var mode types.Mode
	ok := c.registry.UpdateActive(func(run *registry.Run) {
		runID = run.ID
		mode = run.Request.Mode
	})
	if !ok {
		c.log.Debug("ignoring RunFinished callback with no active run")
		return
	}
	if bufferedFor != "" && bufferedFor != runID {
		c.log.Warn("discarding buffered leaves from a different run", "buffered_for", bufferedFor, "active", runID)
		leaves = nil
	}

	state := types.RunStateFaulted
	if aggregate != nil {
		state = types.NormalizeResultState(aggregate.ResultState)
	} else {
		c.log.Warn("run finished without a usable summary", "run_id", runID)
	}

	result := results.Materialize(runID, mode, state, aggregate, leaves)
	c.registry.Complete(state, result)

	c.log.Info("run finished", "run_id", runID, "state", state,
		"total", result.Total(), "passed", result.Passed(), "failed", result.Failed(), "skipped", result.Skipped())
	metrics.RecordRunCompleted(string(mode), string(state), result.Summary)

	if c.sink != nil {
		if err := c.sink.Write(result); err != nil {
			c.log.Warn("failed to persist run result", "run_id", runID, "error", err)
		}
	}
}
