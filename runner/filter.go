package runner

import (
	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/types"
)

// BuildFilter maps a run request onto the engine's filter specification.
// Each filter axis becomes an optional array where nil means "unfiltered on
// this axis"; an empty request therefore matches every test in the mode.
func BuildFilter(req types.RunRequest) engine.Filter {
	return engine.Filter{
		Mode:          string(req.Mode),
		TestNames:     filterAxis(req.TestNames),
		GroupNames:    filterAxis(req.GroupNames),
		CategoryNames: filterAxis(req.CategoryNames),
		AssemblyNames: filterAxis(req.AssemblyNames),
	}
}

func filterAxis(names []string) []string {
	normalized := types.NormalizeNames(names)
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
