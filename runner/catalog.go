package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/types"
)

// ListTests asks the engine for its test tree in each requested mode and
// flattens the trees into leaf entries. No modes means all known modes.
//
// Discovery is read-only with respect to run state: it never touches the
// registry and is safe to call concurrently with run operations. Walker
// calls are serialized against each other and against StartRun through the
// controller's start semaphore. A mode whose engine callback never arrives
// within the tree-wait bound yields an empty list for that mode and does not
// block the remaining modes.
func (c *Controller) ListTests(ctx context.Context, modes ...types.Mode) ([]types.CatalogEntry, error) {
	if err := c.startSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.startSem.Release(1)

	if len(modes) == 0 {
		modes = types.AllModes()
	}

	walker := newCatalogWalker()
	for _, mode := range modes {
		root, err := c.retrieveTree(ctx, mode)
		if err != nil {
			// Engine-side discovery failures degrade to an empty list for
			// this mode rather than failing the whole request.
			c.log.Warn("test tree unavailable; treating mode as empty", "mode", mode, "error", err)
			continue
		}
		walker.walk(root, mode)
	}
	return walker.entries, nil
}

// retrieveTree issues the asynchronous tree request and waits for the
// callback, bounded by the controller's tree-wait. The wait happens outside
// any lock that would block run operations.
func (c *Controller) retrieveTree(ctx context.Context, mode types.Mode) (*engine.Node, error) {
	ready := make(chan *engine.Node, 1)
	reqCtx, cancel := context.WithTimeout(ctx, c.treeWait)
	defer cancel()

	err := c.engine.RetrieveTree(reqCtx, string(mode), func(root *engine.Node) {
		select {
		case ready <- root:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	select {
	case root := <-ready:
		if root == nil {
			return nil, fmt.Errorf("engine delivered an empty tree")
		}
		return root, nil
	case <-reqCtx.Done():
		return nil, fmt.Errorf("engine did not deliver a tree within %s", c.treeWait)
	}
}

// catalogWalker holds the short-lived path-building state for one discovery
// call. Entries are deduplicated by mode and full name, first occurrence
// wins; order follows traversal order.
type catalogWalker struct {
	entries []types.CatalogEntry
	seen    map[string]struct{}
	path    []string
}

func newCatalogWalker() *catalogWalker {
	return &catalogWalker{seen: make(map[string]struct{})}
}

func (w *catalogWalker) walk(node *engine.Node, mode types.Mode) {
	w.path = append(w.path, node.Name)
	defer func() { w.path = w.path[:len(w.path)-1] }()

	if !node.HasChildren && len(node.Children) == 0 {
		key := string(mode) + ":" + node.FullName
		if _, dup := w.seen[key]; dup {
			return
		}
		w.seen[key] = struct{}{}
		w.entries = append(w.entries, types.CatalogEntry{
			Name:     node.Name,
			FullName: node.FullName,
			Path:     strings.Join(w.path, "/"),
			Mode:     mode,
		})
		return
	}
	for _, child := range node.Children {
		w.walk(child, mode)
	}
}
