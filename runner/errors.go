package runner

import (
	"errors"
	"fmt"
	"time"

	"github.com/enginelab/test-orchestrator/types"
)

// ErrEngineBusy is returned when the engine reports it is occupied with a
// prerequisite step (e.g. compiling) that makes starting a run unsafe.
var ErrEngineBusy = errors.New("engine is busy with a prerequisite step; try again once it settles")

// NotFoundError reports that no run matched the request: either the given
// run id is unknown, or no active/completed run exists to fall back to.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID == "" {
		return "no active or completed test run found"
	}
	return fmt.Sprintf("test run %q not found", e.RunID)
}

// IsNotFound checks if the error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return err != nil && errors.As(err, &notFound)
}

// EngineRejectedError reports that the engine declined an execute or cancel
// request, carrying the engine-provided detail verbatim.
type EngineRejectedError struct {
	Op  string
	Err error
}

func (e *EngineRejectedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine rejected %s request", e.Op)
	}
	return fmt.Sprintf("engine rejected %s request: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface.
func (e *EngineRejectedError) Unwrap() error {
	return e.Err
}

// IsEngineRejected checks if the error is or wraps an EngineRejectedError.
func IsEngineRejected(err error) bool {
	var rejected *EngineRejectedError
	return err != nil && errors.As(err, &rejected)
}

// AlreadyFinishedError reports a cancel request against a run that already
// reached a terminal state. Cancelling a finished run is meaningless, and
// reporting success would mislead the caller.
type AlreadyFinishedError struct {
	RunID string
	State types.RunState
}

func (e *AlreadyFinishedError) Error() string {
	return fmt.Sprintf("test run %q already finished with state %s", e.RunID, e.State)
}

// IsAlreadyFinished checks if the error is or wraps an AlreadyFinishedError.
func IsAlreadyFinished(err error) bool {
	var finished *AlreadyFinishedError
	return err != nil && errors.As(err, &finished)
}

// NoResultError reports that a run resolved but has no materialized result
// yet, i.e. it has not reached a terminal state.
type NoResultError struct {
	RunID string
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("no result available for test run %q yet", e.RunID)
}

// IsNoResult checks if the error is or wraps a NoResultError.
func IsNoResult(err error) bool {
	var noResult *NoResultError
	return err != nil && errors.As(err, &noResult)
}

// NoFailuresError reports a rerun-failed request against a run with zero
// failed tests; no new run is started.
type NoFailuresError struct {
	RunID string
}

func (e *NoFailuresError) Error() string {
	return fmt.Sprintf("test run %q has no failed tests to rerun", e.RunID)
}

// IsNoFailures checks if the error is or wraps a NoFailuresError.
func IsNoFailures(err error) bool {
	var noFailures *NoFailuresError
	return err != nil && errors.As(err, &noFailures)
}

// WaitTimeoutError reports that a wait-for-completion outlived its bound.
// It carries the latest status snapshot so the caller can keep polling.
type WaitTimeoutError struct {
	RunID    string
	Timeout  time.Duration
	Snapshot types.RunStatus
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("test run %q did not finish within %s", e.RunID, e.Timeout)
}

// IsWaitTimeout checks if the error is or wraps a WaitTimeoutError.
func IsWaitTimeout(err error) bool {
	var timeout *WaitTimeoutError
	return err != nil && errors.As(err, &timeout)
}
