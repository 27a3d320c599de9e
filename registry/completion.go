package registry

import (
	"context"
	"sync"
	"time"

	"github.com/enginelab/test-orchestrator/types"
)

// Completion is the one-shot signal resolved when a run reaches a terminal
// state. Callers may block on Done, wait with a bound, or poll; resolving
// more than once is a no-op.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result *types.RunResult
}

// NewCompletion creates an unresolved completion signal.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve publishes the run result and releases all waiters. Only the first
// call has any effect.
func (c *Completion) Resolve(result *types.RunResult) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Done returns a channel closed once the run has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether the signal has fired.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result returns the published result, or nil while unresolved.
func (c *Completion) Result() *types.RunResult {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

// Wait blocks until the run finishes, the bound elapses, or ctx is done.
// ok is false when the wait ended without a result.
func (c *Completion) Wait(ctx context.Context, timeout time.Duration) (result *types.RunResult, ok bool) {
	var bound <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		bound = timer.C
	}
	select {
	case <-c.done:
		return c.result, true
	case <-bound:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
