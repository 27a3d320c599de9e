package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// SimConfig configures the simulated engine.
type SimConfig struct {
	Log log.Logger

	// Trees maps execution mode to that mode's test tree root.
	Trees map[string]*Node

	// StepDelay is the pause between per-test callbacks. Zero delivers
	// results as fast as the scheduler allows.
	StepDelay time.Duration

	// Fail maps leaf full names to a failure message.
	Fail map[string]string

	// Skip maps leaf full names to a skip reason.
	Skip map[string]string

	// OmitAggregate makes finished runs report no top-level summary,
	// exercising the orchestrator's leaf-derived fallback path.
	OmitAggregate bool

	// MuteTree suppresses RetrieveTree callbacks entirely, simulating an
	// engine that never responds for a mode.
	MuteTree bool
}

// Sim is an in-process simulated engine. It serves as the collaborator for
// local development and as the engine double in tests: runs execute on their
// own goroutine and report through the subscribed callbacks, mirroring the
// callback threading of a real engine.
type Sim struct {
	cfg SimConfig

	mu      sync.Mutex
	cb      Callbacks
	busy    bool
	cancels map[string]chan struct{}
}

// NewSim creates a simulated engine.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Sim{
		cfg:     cfg,
		cancels: make(map[string]chan struct{}),
	}
}

// SetBusy toggles the engine's prerequisite-step flag.
func (s *Sim) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// Busy implements Engine.
func (s *Sim) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Subscribe implements Engine. At most one subscriber is supported, matching
// the single-controller wiring of the orchestrator.
func (s *Sim) Subscribe(cb Callbacks) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb != nil {
		return nil, fmt.Errorf("engine already has a subscriber")
	}
	s.cb = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cb = nil
	}, nil
}

// RetrieveTree implements Engine. The callback is delivered asynchronously,
// as a real engine would.
func (s *Sim) RetrieveTree(ctx context.Context, mode string, onReady func(root *Node)) error {
	if s.cfg.MuteTree {
		return nil
	}
	root := s.cfg.Trees[mode]
	if root == nil {
		return fmt.Errorf("no test tree for mode %q", mode)
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(s.cfg.StepDelay):
			onReady(root)
		}
	}()
	return nil
}

// Execute implements Engine. It selects the leaves matching the filter and
// replays them on a new goroutine through the subscribed callbacks.
func (s *Sim) Execute(filter Filter) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb == nil {
		return "", fmt.Errorf("no callback subscriber registered")
	}
	root := s.cfg.Trees[filter.Mode]
	if root == nil {
		return "", fmt.Errorf("no test tree for mode %q", filter.Mode)
	}

	runID := uuid.New().String()
	cancel := make(chan struct{})
	s.cancels[runID] = cancel
	cb := s.cb

	go s.run(runID, cb, root, filter, cancel)
	return runID, nil
}

// CancelRun implements Engine. Cancellation is accepted only for runs still
// in flight.
func (s *Sim) CancelRun(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[runID]
	if !ok {
		return false
	}
	select {
	case <-cancel:
		// already signalled
	default:
		close(cancel)
	}
	return true
}

func (s *Sim) run(runID string, cb Callbacks, root *Node, filter Filter, cancel chan struct{}) {
	leaves := matchLeaves(root, nil, filter)
	s.cfg.Log.Debug("sim engine run starting", "run_id", runID, "tests", len(leaves))

	cb.RunStarted(root)

	var results []TestResult
	canceled := false
	for _, leaf := range leaves {
		select {
		case <-cancel:
			canceled = true
		case <-time.After(s.cfg.StepDelay):
		}
		if canceled {
			break
		}
		res := s.outcome(leaf)
		results = append(results, res)
		cb.TestFinished(res)
	}

	s.mu.Lock()
	delete(s.cancels, runID)
	s.mu.Unlock()

	if s.cfg.OmitAggregate {
		cb.RunFinished(nil)
		return
	}
	cb.RunFinished(aggregate(results, canceled))
}

func (s *Sim) outcome(leaf *Node) TestResult {
	res := TestResult{
		Name:            leaf.Name,
		FullName:        leaf.FullName,
		State:           "Passed",
		DurationSeconds: 0.01,
	}
	if msg, ok := s.cfg.Fail[leaf.FullName]; ok {
		res.State = "Failed"
		res.Message = msg
		res.StackTrace = fmt.Sprintf("at %s", leaf.FullName)
	} else if reason, ok := s.cfg.Skip[leaf.FullName]; ok {
		res.State = "Skipped"
		res.Message = reason
	}
	return res
}

func aggregate(results []TestResult, canceled bool) *AggregateResult {
	counts := &AggregateCounts{Total: len(results)}
	var duration float64
	for _, r := range results {
		duration += r.DurationSeconds
		switch strings.ToLower(r.State) {
		case "passed":
			counts.Passed++
		case "failed":
			counts.Failed++
		case "skipped":
			counts.Skipped++
		}
	}
	state := "Passed"
	if counts.Failed > 0 {
		state = "Failed"
	}
	if canceled {
		state = "Cancelled"
	}
	return &AggregateResult{
		ResultState:     state,
		DurationSeconds: duration,
		Counts:          counts,
	}
}

// matchLeaves walks the tree collecting leaves that satisfy the filter. The
// simulation interprets group filters as ancestor node names and assembly
// filters as the names of the root's immediate children; category filters
// are not modeled.
func matchLeaves(node *Node, ancestors []string, filter Filter) []*Node {
	if !node.HasChildren && len(node.Children) == 0 {
		if leafMatches(node, ancestors, filter) {
			return []*Node{node}
		}
		return nil
	}
	chain := append(ancestors, node.Name)
	var leaves []*Node
	for _, child := range node.Children {
		leaves = append(leaves, matchLeaves(child, chain, filter)...)
	}
	return leaves
}

func leafMatches(leaf *Node, ancestors []string, filter Filter) bool {
	if len(filter.TestNames) > 0 && !contains(filter.TestNames, leaf.FullName) {
		return false
	}
	if len(filter.GroupNames) > 0 {
		found := false
		for _, a := range ancestors {
			if contains(filter.GroupNames, a) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.AssemblyNames) > 0 {
		// The assembly is the top-level node under the root.
		if len(ancestors) < 2 || !contains(filter.AssemblyNames, ancestors[1]) {
			return false
		}
	}
	return true
}

func contains(names []string, s string) bool {
	for _, n := range names {
		if n == s {
			return true
		}
	}
	return false
}
