package types

import "strings"

// RunRequest describes one requested test run: the execution mode plus four
// optional filter axes. A nil/empty axis means "unfiltered on this axis"; an
// empty request matches every test in the requested mode.
type RunRequest struct {
	Mode          Mode
	TestNames     []string
	GroupNames    []string
	CategoryNames []string
	AssemblyNames []string
}

// NewRunRequest builds a normalized RunRequest. Each filter axis is trimmed,
// blank entries are dropped and duplicates removed (first occurrence wins).
func NewRunRequest(mode Mode, testNames, groupNames, categoryNames, assemblyNames []string) RunRequest {
	return RunRequest{
		Mode:          mode,
		TestNames:     NormalizeNames(testNames),
		GroupNames:    NormalizeNames(groupNames),
		CategoryNames: NormalizeNames(categoryNames),
		AssemblyNames: NormalizeNames(assemblyNames),
	}
}

// HasFilters reports whether any filter axis is populated.
func (r RunRequest) HasFilters() bool {
	return len(r.TestNames) > 0 || len(r.GroupNames) > 0 ||
		len(r.CategoryNames) > 0 || len(r.AssemblyNames) > 0
}

// NormalizeNames trims entries, drops blanks and de-duplicates, keeping the
// first occurrence of each name. Returns nil when nothing survives.
func NormalizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
