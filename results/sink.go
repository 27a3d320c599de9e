package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/enginelab/test-orchestrator/types"
)

// FileSink persists completed run results as JSON files under a directory,
// one file per run id. Best-effort: the in-memory history is authoritative
// and a write failure never fails the run.
type FileSink struct {
	dir string
	log log.Logger
}

// NewFileSink creates a sink rooted at dir, creating it if needed.
func NewFileSink(dir string, logger log.Logger) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("result directory is required")
	}
	if logger == nil {
		logger = log.New()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating result directory: %w", err)
	}
	return &FileSink{dir: dir, log: logger}, nil
}

// Write stores the result for its run id, replacing any previous file.
func (s *FileSink) Write(result *types.RunResult) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("result with a run id is required")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	path := s.Path(result.RunID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	s.log.Debug("wrote run result", "run_id", result.RunID, "path", path)
	return nil
}

// Path returns the file path used for a run id.
func (s *FileSink) Path(runID string) string {
	// Run ids come from the engine; keep them filesystem-safe.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, runID)
	return filepath.Join(s.dir, safe+".json")
}
