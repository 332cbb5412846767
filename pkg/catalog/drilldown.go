package catalog

import (
	"context"
	"time"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// Drilldown returns the filtered subtree below a collection's effective
// position. The root entry is the effective position itself; its Children
// are its surviving direct children, recursively. A detached collection
// yields a root with no children and no error.
func (c *Catalog) Drilldown(ctx context.Context, collectionID string, opts types.DrilldownOptions) (*types.Tree, error) {
	start := time.Now()
	coll, node, err := c.resolve(ctx, collectionID, opts.NodeID)
	if isDetached(err) {
		return &types.Tree{Collection: coll, Children: []*types.Tree{}}, nil
	}
	if err != nil {
		return nil, err
	}

	nodes, err := c.src.DescendantsOf(ctx, node.NodeID, opts.Filter())
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(nodes)+1)
	ids = append(ids, node.CollectionID)
	for _, n := range nodes {
		ids = append(ids, n.CollectionID)
	}
	colls, err := c.src.CollectionsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	tree := fold(node, nodes, opts.Policy, colls)
	tree.Collection = coll

	c.log.Debug().
		Str("collection_id", coll.CollectionID).
		Str("node_id", node.NodeID).
		Int("matched", len(nodes)).
		Int("placed", tree.Size()).
		Dur("duration", time.Since(start)).
		Msg("drilldown")
	return tree, nil
}

// fold rebuilds the nesting of a pre-order node sequence that lies inside
// root. The stack holds the chain of placed entries enclosing the current
// node; interval containment, not depth, decides where a node belongs.
//
// Under PolicyHide a node whose enclosing entry is not its direct parent had
// an ancestor filtered out, so it is dropped, and so are its descendants for
// the same reason. Under PolicyReparent it hangs under that entry instead.
func fold(root *types.TreeNode, nodes []*types.TreeNode, policy types.FilterPolicy, colls map[string]*types.Collection) *types.Tree {
	top := &types.Tree{Node: root, Collection: colls[root.CollectionID], Children: []*types.Tree{}}
	stack := []*types.Tree{top}

	for _, n := range nodes {
		for len(stack) > 1 && !stack[len(stack)-1].Node.IsAncestorOf(n) {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		if policy == types.PolicyHide && n.Depth != parent.Node.Depth+1 {
			continue
		}
		t := &types.Tree{Node: n, Collection: colls[n.CollectionID], Children: []*types.Tree{}}
		parent.Children = append(parent.Children, t)
		stack = append(stack, t)
	}
	return top
}
