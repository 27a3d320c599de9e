package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "TEST_ORCHESTRATOR"

var (
	Catalog = &cli.StringFlag{
		Name:     "catalog",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CATALOG"),
		Usage:    "Path to the test catalog file (eg. 'catalog.yaml')",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVE"),
		Usage:   "Run as a long-lived service exposing the HTTP API. Omit for run-once mode.",
	}
	APIAddr = &cli.StringFlag{
		Name:    "api-addr",
		Value:   "0.0.0.0:7012",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_ADDR"),
		Usage:   "Listen address for the HTTP API in serve mode",
	}
	Mode = &cli.StringFlag{
		Name:    "mode",
		Value:   "EditMode",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MODE"),
		Usage:   "Execution mode for run-once mode ('EditMode' or 'PlayMode')",
	}
	TestNames = &cli.StringSliceFlag{
		Name:    "test",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST"),
		Usage:   "Full name of a test to run; repeatable",
	}
	GroupNames = &cli.StringSliceFlag{
		Name:    "group",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GROUP"),
		Usage:   "Name of a test group to run; repeatable",
	}
	CategoryNames = &cli.StringSliceFlag{
		Name:    "category",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CATEGORY"),
		Usage:   "Name of a test category to run; repeatable",
	}
	AssemblyNames = &cli.StringSliceFlag{
		Name:    "assembly",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ASSEMBLY"),
		Usage:   "Name of a test assembly to run; repeatable",
	}
	WaitTimeout = &cli.DurationFlag{
		Name:    "wait-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WAIT_TIMEOUT"),
		Usage:   "Maximum time to wait for a run to finish (e.g. '10m'). 0 uses the default.",
	}
	TreeWait = &cli.DurationFlag{
		Name:    "tree-wait",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TREE_WAIT"),
		Usage:   "Maximum time to wait for the engine's test tree per mode. 0 uses the default.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run result files. Empty disables the file sink.",
	}
	StepDelay = &cli.DurationFlag{
		Name:    "step-delay",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STEP_DELAY"),
		Usage:   "Pause between simulated per-test results (e.g. '100ms')",
	}
)

var requiredFlags = []cli.Flag{
	Catalog,
}

var optionalFlags = []cli.Flag{
	Serve,
	APIAddr,
	Mode,
	TestNames,
	GroupNames,
	CategoryNames,
	AssemblyNames,
	WaitTimeout,
	TreeWait,
	LogDir,
	StepDelay,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
