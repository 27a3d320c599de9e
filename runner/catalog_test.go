package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/registry"
	"github.com/enginelab/test-orchestrator/types"
)

func TestListTests(t *testing.T) {
	f := newFixture(t, engine.SimConfig{
		Trees: map[string]*engine.Node{
			"EditMode": editModeTree(),
			"PlayMode": group("PlayMode", "PlayMode",
				group("PlayTests", "PlayTests",
					leaf("TestJump", "PlayTests.TestJump"),
				),
			),
		},
	})
	ctx := context.Background()

	t.Run("single mode", func(t *testing.T) {
		entries, err := f.controller.ListTests(ctx, types.ModePlayMode)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, types.CatalogEntry{
			Name:     "TestJump",
			FullName: "PlayTests.TestJump",
			Path:     "PlayMode/PlayTests/TestJump",
			Mode:     types.ModePlayMode,
		}, entries[0])
	})

	t.Run("no modes means all modes", func(t *testing.T) {
		entries, err := f.controller.ListTests(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 4)

		modes := make(map[types.Mode]int)
		for _, e := range entries {
			modes[e.Mode]++
		}
		assert.Equal(t, 3, modes[types.ModeEditMode])
		assert.Equal(t, 1, modes[types.ModePlayMode])
	})

	t.Run("path follows the tree", func(t *testing.T) {
		entries, err := f.controller.ListTests(ctx, types.ModeEditMode)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, "EditMode/CoreTests/MathSuite/TestAdd", entries[0].Path)
	})
}

func TestListTestsDeduplicates(t *testing.T) {
	// The same leaf appears under two parents; only the first survives
	dup := group("EditMode", "EditMode",
		group("A", "A",
			leaf("TestOne", "Shared.TestOne"),
		),
		group("B", "B",
			leaf("TestOne", "Shared.TestOne"),
			leaf("TestTwo", "B.TestTwo"),
		),
	)
	f := newFixture(t, engine.SimConfig{
		Trees: map[string]*engine.Node{"EditMode": dup},
	})

	entries, err := f.controller.ListTests(context.Background(), types.ModeEditMode)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "EditMode/A/TestOne", entries[0].Path, "first occurrence wins")
	assert.Equal(t, "B.TestTwo", entries[1].FullName)
}

func TestListTestsUnresponsiveMode(t *testing.T) {
	sim := engine.NewSim(engine.SimConfig{
		Trees:    map[string]*engine.Node{"EditMode": editModeTree()},
		MuteTree: true,
	})
	reg := registry.New(registry.Config{})
	controller, err := New(Config{
		Engine:   sim,
		Registry: reg,
		TreeWait: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	start := time.Now()
	entries, err := controller.ListTests(context.Background())
	require.NoError(t, err, "an unresponsive engine degrades to an empty catalog")
	assert.Empty(t, entries)
	assert.Less(t, time.Since(start), time.Second, "each mode is bounded by the tree wait")
}

func TestListTestsUnknownModeIsEmpty(t *testing.T) {
	f := newFixture(t, engine.SimConfig{
		Trees: map[string]*engine.Node{"EditMode": editModeTree()},
	})

	// PlayMode has no tree; the request still succeeds for the other mode
	entries, err := f.controller.ListTests(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, types.ModeEditMode, e.Mode)
	}
}
