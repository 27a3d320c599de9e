package orchestrator

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/enginelab/test-orchestrator/flags"
	"github.com/enginelab/test-orchestrator/types"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	Catalog     string          // Path to the test catalog file
	Serve       bool            // Run as a long-lived API service instead of run-once
	APIAddr     string          // API listen address in serve mode
	Mode        types.Mode      // Execution mode for run-once runs
	TestNames   []string        // Test filter for run-once runs
	GroupNames  []string        // Group filter for run-once runs
	Categories  []string        // Category filter for run-once runs
	Assemblies  []string        // Assembly filter for run-once runs
	WaitTimeout time.Duration   // How long run-once waits for completion (0 = default)
	TreeWait    time.Duration   // Per-mode discovery bound (0 = default)
	LogDir      string          // Directory for per-run result files; empty disables the sink
	StepDelay   time.Duration   // Simulated engine pacing
	Log         log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	catalog := ctx.String(flags.Catalog.Name)
	if catalog == "" {
		return nil, errors.New("test catalog file is required")
	}
	absCatalog, err := filepath.Abs(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test catalog '%s': %w", catalog, err)
	}

	modeStr := ctx.String(flags.Mode.Name)
	mode, ok := types.ParseMode(modeStr)
	if !ok {
		return nil, fmt.Errorf("invalid execution mode: %s. Must be one of: %s, %s",
			modeStr, types.ModeEditMode, types.ModePlayMode)
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
		}
	}

	return &Config{
		Catalog:     absCatalog,
		Serve:       ctx.Bool(flags.Serve.Name),
		APIAddr:     ctx.String(flags.APIAddr.Name),
		Mode:        mode,
		TestNames:   ctx.StringSlice(flags.TestNames.Name),
		GroupNames:  ctx.StringSlice(flags.GroupNames.Name),
		Categories:  ctx.StringSlice(flags.CategoryNames.Name),
		Assemblies:  ctx.StringSlice(flags.AssemblyNames.Name),
		WaitTimeout: ctx.Duration(flags.WaitTimeout.Name),
		TreeWait:    ctx.Duration(flags.TreeWait.Name),
		LogDir:      logDir,
		StepDelay:   ctx.Duration(flags.StepDelay.Name),
		Log:         log,
	}, nil
}
