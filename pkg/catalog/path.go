package catalog

import (
	"context"
	"iter"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// PathToRoot returns the path from a collection's effective position up to
// its tree root: the position itself, then its ancestors innermost first.
// Unless opts.FollowVirtual is set, the sequence ends with the first virtual
// node it yields.
//
// The start position is resolved immediately, so ErrNotFound,
// ErrNodeMismatch and ErrDetachedNode are returned here. The sequence reads
// the store each time it is ranged over; a read error is yielded once as the
// final element.
func (c *Catalog) PathToRoot(ctx context.Context, collectionID string, opts types.PathOptions) (iter.Seq2[*types.TreeNode, error], error) {
	_, node, err := c.resolve(ctx, collectionID, opts.NodeID)
	if err != nil {
		return nil, err
	}
	return c.walkUp(ctx, node.NodeID, opts.FollowVirtual), nil
}

func (c *Catalog) walkUp(ctx context.Context, nodeID string, followVirtual bool) iter.Seq2[*types.TreeNode, error] {
	return func(yield func(*types.TreeNode, error) bool) {
		start, err := c.src.GetNode(ctx, nodeID)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(start, nil) || (start.Virtual && !followVirtual) {
			return
		}

		ancestors, err := c.src.AncestorsOf(ctx, nodeID)
		if err != nil {
			yield(nil, err)
			return
		}
		for i := len(ancestors) - 1; i >= 0; i-- {
			a := ancestors[i]
			if !yield(a, nil) || (a.Virtual && !followVirtual) {
				return
			}
		}
	}
}

// Path collects PathToRoot into a slice.
func (c *Catalog) Path(ctx context.Context, collectionID string, opts types.PathOptions) ([]*types.TreeNode, error) {
	seq, err := c.PathToRoot(ctx, collectionID, opts)
	if err != nil {
		return nil, err
	}
	var path []*types.TreeNode
	for n, err := range seq {
		if err != nil {
			return nil, err
		}
		path = append(path, n)
	}
	return path, nil
}

// PathNames returns the collection names along Path, innermost first.
func (c *Catalog) PathNames(ctx context.Context, collectionID string, opts types.PathOptions) ([]string, error) {
	path, err := c.Path(ctx, collectionID, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.CollectionID
	}
	colls, err := c.src.CollectionsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(path))
	for i, n := range path {
		if coll, ok := colls[n.CollectionID]; ok {
			names[i] = coll.Name
		}
	}
	return names, nil
}
