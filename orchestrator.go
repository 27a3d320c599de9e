package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/urfave/cli/v2"

	"github.com/enginelab/test-orchestrator/api"
	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/exitcodes"
	"github.com/enginelab/test-orchestrator/registry"
	"github.com/enginelab/test-orchestrator/results"
	"github.com/enginelab/test-orchestrator/runner"
	"github.com/enginelab/test-orchestrator/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Orchestrator implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Orchestrator{}

// Orchestrator is the test-run orchestration service. It owns the engine
// connection, the run registry and the controller, and runs either as a
// one-shot CLI test run or as a long-lived HTTP API service.
type Orchestrator struct {
	ctx        context.Context
	config     *Config
	version    string
	engine     *engine.Sim
	registry   *registry.Registry
	controller *runner.Controller
	server     *api.Server
	result     *types.RunResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Orchestrator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating orchestrator with config",
		"catalog", config.Catalog,
		"serve", config.Serve,
		"mode", config.Mode,
		"logDir", config.LogDir)

	trees, err := engine.LoadTrees(config.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load test catalog: %w", err)
	}
	eng := engine.NewSim(engine.SimConfig{
		Log:       config.Log,
		Trees:     trees,
		StepDelay: config.StepDelay,
	})

	reg := registry.New(registry.Config{Log: config.Log})

	var sink *results.FileSink
	if config.LogDir != "" {
		sink, err = results.NewFileSink(config.LogDir, config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to create result sink: %w", err)
		}
	}

	controller, err := runner.New(runner.Config{
		Engine:   eng,
		Registry: reg,
		Log:      config.Log,
		TreeWait: config.TreeWait,
		Sink:     sink,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run controller: %w", err)
	}
	config.Log.Info("orchestrator.New: created engine, registry and controller")

	return &Orchestrator{
		ctx:              ctx,
		config:           config,
		version:          version,
		engine:           eng,
		registry:         reg,
		controller:       controller,
		server:           api.NewServer(controller, config.Log),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start begins serving the API, or runs one test run and exits.
// Start implements the cliapp.Lifecycle interface.
func (o *Orchestrator) Start(ctx context.Context) error {
	// Exit with code 2 for runtime errors that surface as panics
	defer func() {
		if r := recover(); r != nil {
			o.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	o.ctx = ctx
	o.done = make(chan struct{})
	o.running.Store(true)

	if o.config.Serve {
		o.config.Log.Info("Starting orchestrator in serve mode", "addr", o.config.APIAddr)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.server.Start(ctx, o.config.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				o.config.Log.Error("API server failed", "error", err)
				o.running.Store(false)
				o.shutdownCallback(err)
			}
		}()
		o.config.Log.Debug("orchestrator started successfully")
		return nil
	}

	o.config.Log.Info("Starting orchestrator in run-once mode", "mode", o.config.Mode)
	err := o.runTests(ctx)
	if err != nil {
		if IsTestFailureError(err) {
			o.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return err
		}
		// Runtime errors (engine rejection, timeouts) exit with code 2
		o.config.Log.Error("Runtime error running tests", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	o.config.Log.Info("Tests completed, exiting (run-once mode)")
	go func() {
		o.shutdownCallback(nil)
	}()
	return nil // Success (exit code 0)
}

// runTests starts one run from the configured filters, waits for it to
// finish and reports the outcome.
func (o *Orchestrator) runTests(ctx context.Context) error {
	req := types.NewRunRequest(
		o.config.Mode,
		o.config.TestNames,
		o.config.GroupNames,
		o.config.Categories,
		o.config.Assemblies,
	)

	handle, err := o.controller.StartRun(ctx, req)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to start test run: %w", err))
	}
	o.config.Log.Info("Test run started", "run_id", handle.RunID)

	timeout := o.config.WaitTimeout
	if timeout == 0 {
		timeout = api.DefaultWaitTimeout
	}
	result, err := o.controller.Wait(ctx, handle, timeout)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("test run did not finish: %w", err))
	}
	o.result = result

	printResultsTable(result)
	fmt.Println(result.SummaryMessage())
	o.config.Log.Info("Test run completed", "run_id", result.RunID, "state", result.State)

	switch result.State {
	case types.RunStateCompleted:
		return nil
	case types.RunStateFailed:
		return NewTestFailureError(result.SummaryMessage())
	default:
		// Canceled or faulted runs are not assertion failures
		return NewRuntimeError(errors.New(result.SummaryMessage()))
	}
}

// Stop stops the orchestrator service.
// Stop implements the cliapp.Lifecycle interface.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.config.Log.Info("Stopping orchestrator")

	if !o.running.Load() {
		o.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	o.running.Store(false)
	close(o.done)

	if o.config.Serve {
		if err := o.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.config.Log.Error("Error shutting down API server", "error", err)
		}
	}
	o.controller.Close()

	o.config.Log.Info("orchestrator stopped successfully")
	return nil
}

// Stopped returns true if the orchestrator service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (o *Orchestrator) Stopped() bool {
	return !o.running.Load()
}

// WaitForShutdown blocks until background goroutines have terminated.
func (o *Orchestrator) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
