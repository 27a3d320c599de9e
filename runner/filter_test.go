package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/types"
)

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name string
		req  types.RunRequest
		want engine.Filter
	}{
		{
			name: "empty request matches everything in the mode",
			req:  types.RunRequest{Mode: types.ModeEditMode},
			want: engine.Filter{Mode: "EditMode"},
		},
		{
			name: "all axes carried",
			req: types.RunRequest{
				Mode:          types.ModePlayMode,
				TestNames:     []string{"A.TestOne"},
				GroupNames:    []string{"Suite"},
				CategoryNames: []string{"smoke"},
				AssemblyNames: []string{"Core"},
			},
			want: engine.Filter{
				Mode:          "PlayMode",
				TestNames:     []string{"A.TestOne"},
				GroupNames:    []string{"Suite"},
				CategoryNames: []string{"smoke"},
				AssemblyNames: []string{"Core"},
			},
		},
		{
			name: "blank and duplicate names collapse",
			req: types.RunRequest{
				Mode:      types.ModeEditMode,
				TestNames: []string{" A.TestOne ", "", "A.TestOne", "  "},
			},
			want: engine.Filter{
				Mode:      "EditMode",
				TestNames: []string{"A.TestOne"},
			},
		},
		{
			name: "axis of only blanks becomes unfiltered",
			req: types.RunRequest{
				Mode:       types.ModeEditMode,
				GroupNames: []string{"", "   "},
			},
			want: engine.Filter{Mode: "EditMode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFilter(tt.req)
			assert.Equal(t, tt.want, got)
			if len(tt.want.TestNames) == 0 {
				assert.Nil(t, got.TestNames, "empty axes must be nil, never empty slices")
			}
		})
	}
}
