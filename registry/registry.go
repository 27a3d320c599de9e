// Package registry owns the mutable bookkeeping for test runs: the single
// active run, the last completed run, a bounded history keyed by run id, and
// the in-flight completion signal. All reads and writes happen inside one
// coarse critical section so concurrent start/status/cancel/result calls
// observe a consistent snapshot.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/enginelab/test-orchestrator/types"
)

// DefaultHistoryLimit bounds the run history to the most recently created
// runs.
const DefaultHistoryLimit = 10

// ErrInconsistent signals that the registry's active-run bookkeeping no
// longer holds together (an in-flight completion with no active run, or a
// run accepted by the engine without an id). This is an integration bug, not
// a transient condition, and is never silently swallowed.
var ErrInconsistent = errors.New("run registry is in an inconsistent state")

// Run is a managed run. It is owned exclusively by the Registry: every
// mutation happens inside the registry's critical section, through the
// Update/Complete entrypoints.
type Run struct {
	ID        string
	Request   types.RunRequest
	State     types.RunState
	StartedAt time.Time
	EndedAt   time.Time
	Result    *types.RunResult
}

// Terminal reports whether the run has reached a terminal state.
func (r *Run) Terminal() bool {
	return r.State.Terminal()
}

// status builds a point-in-time snapshot. Elapsed time is computed against
// now while running and frozen at completion, never negative.
func (r *Run) status(now time.Time) types.RunStatus {
	end := now
	var completedAt *time.Time
	if !r.EndedAt.IsZero() {
		end = r.EndedAt
		t := r.EndedAt
		completedAt = &t
	}
	elapsed := end.Sub(r.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	st := types.RunStatus{
		RunID:          r.ID,
		Mode:           r.Request.Mode,
		State:          r.State,
		StartedAt:      r.StartedAt,
		CompletedAt:    completedAt,
		ElapsedSeconds: elapsed,
	}
	if r.Result != nil {
		summary := r.Result.Summary
		st.Summary = &summary
	}
	return st
}

// Config contains registry configuration.
type Config struct {
	Log          log.Logger
	HistoryLimit int
}

// Registry is the process-wide run registry. One instance exists per service
// lifetime.
type Registry struct {
	log   log.Logger
	limit int

	mu      sync.Mutex
	active  *Run
	last    *Run
	runs    map[string]*Run
	order   []string // run ids in creation order, for FIFO eviction
	pending *Completion
}

// New creates a registry.
func New(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Registry{
		log:   cfg.Log,
		limit: cfg.HistoryLimit,
		runs:  make(map[string]*Run),
	}
}

// AttachInfo reports whether a run is currently in flight. When one is, the
// returned id and completion let the caller attach to it instead of starting
// a second run. An in-flight completion without an active run violates the
// registry invariant and returns ErrInconsistent.
func (reg *Registry) AttachInfo() (runID string, completion *Completion, inFlight bool, err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.pending == nil {
		return "", nil, false, nil
	}
	if reg.active == nil || reg.active.ID == "" {
		return "", nil, true, ErrInconsistent
	}
	return reg.active.ID, reg.pending, true, nil
}

// Reserve installs a fresh completion signal for a run about to be started.
// The caller must hold the start serialization and have verified via
// AttachInfo that nothing is in flight.
func (reg *Registry) Reserve() *Completion {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.pending = NewCompletion()
	return reg.pending
}

// RollbackReservation clears a reservation after a failed engine invocation
// so a subsequent start is not permanently blocked.
func (reg *Registry) RollbackReservation(c *Completion) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.pending == c {
		reg.pending = nil
	}
}

// RecordNewRun creates a managed run in the Queued state, makes it the
// active run, and appends it to the bounded history, evicting the oldest
// entries beyond the limit. Eviction skips the still-active run so the only
// handle to it is never lost.
func (reg *Registry) RecordNewRun(id string, request types.RunRequest) (*Run, error) {
	if id == "" {
		return nil, ErrInconsistent
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	run := &Run{
		ID:        id,
		Request:   request,
		State:     types.RunStateQueued,
		StartedAt: time.Now().UTC(),
	}
	reg.active = run
	reg.runs[id] = run
	reg.order = append(reg.order, id)
	reg.evictLocked()

	reg.log.Debug("recorded new run", "run_id", id, "mode", request.Mode, "history", len(reg.runs))
	return run, nil
}

func (reg *Registry) evictLocked() {
	for len(reg.order) > reg.limit {
		evicted := false
		for i, id := range reg.order {
			if reg.active != nil && id == reg.active.ID {
				continue
			}
			reg.log.Debug("evicting run from history", "run_id", id)
			delete(reg.runs, id)
			reg.order = append(reg.order[:i], reg.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// UpdateActive runs fn against the active run inside the registry's critical
// section. Returns false when no run is active (fn is not called).
func (reg *Registry) UpdateActive(fn func(run *Run)) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.active == nil {
		return false
	}
	fn(reg.active)
	return true
}

// Update runs fn against the run with the given id inside the critical
// section. Returns false when the id is unknown.
func (reg *Registry) Update(runID string, fn func(run *Run)) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[runID]
	if !ok {
		return false
	}
	fn(run)
	return true
}

// Complete performs the terminal transition for the active run: its state,
// end time and result are fixed together exactly once, the run is demoted
// from active to last-completed, and the in-flight completion is resolved.
// A completion with no active run (a spurious engine callback) is a no-op.
func (reg *Registry) Complete(state types.RunState, result *types.RunResult) *Run {
	reg.mu.Lock()
	run := reg.active
	completion := reg.pending
	if run == nil {
		reg.mu.Unlock()
		return nil
	}
	if !run.Terminal() {
		run.State = state
		run.EndedAt = time.Now().UTC()
		run.Result = result
	}
	reg.last = run
	reg.active = nil
	reg.pending = nil
	reg.mu.Unlock()

	if completion != nil {
		completion.Resolve(result)
	}
	return run
}

// Resolve finds a run by id. When runID is empty and fallback is allowed,
// the active run is preferred, then the most recently completed one.
func (reg *Registry) Resolve(runID string, allowFallback bool) (*Run, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.resolveLocked(runID, allowFallback)
}

// resolveLocked is the pure resolution rule over the registry's three pieces
// of state.
func (reg *Registry) resolveLocked(runID string, allowFallback bool) (*Run, bool) {
	if runID != "" {
		run, ok := reg.runs[runID]
		return run, ok
	}
	if !allowFallback {
		return nil, false
	}
	if reg.active != nil {
		return reg.active, true
	}
	if reg.last != nil {
		return reg.last, true
	}
	return nil, false
}

// Snapshot resolves a run and returns its status snapshot, taken inside the
// critical section so the caller never observes a torn run.
func (reg *Registry) Snapshot(runID string, allowFallback bool) (types.RunStatus, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.resolveLocked(runID, allowFallback)
	if !ok {
		return types.RunStatus{}, false
	}
	return run.status(time.Now().UTC()), true
}

// ResultOf resolves a run and returns its materialized result. found
// reports whether the run resolved at all; a found run without a result has
// not reached a terminal state yet.
func (reg *Registry) ResultOf(runID string, allowFallback bool) (result *types.RunResult, found bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.resolveLocked(runID, allowFallback)
	if !ok {
		return nil, false
	}
	return run.Result, true
}

// Pending returns the in-flight completion signal, if any.
func (reg *Registry) Pending() *Completion {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.pending
}

// ActiveID returns the id of the active run, or "".
func (reg *Registry) ActiveID() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.active == nil {
		return ""
	}
	return reg.active.ID
}

// HistorySize returns the number of runs currently retained.
func (reg *Registry) HistorySize() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.runs)
}
