// Package catalog implements the read side of the collection catalog:
// filtered drilldown trees, paths to the root, and the membership sources a
// record indexer needs. Structural mutations go straight to the store.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// Source is the part of a store the catalog reads from. types.Store
// satisfies it.
type Source interface {
	GetCollection(ctx context.Context, id string) (*types.Collection, error)
	CollectionsByID(ctx context.Context, ids []string) (map[string]*types.Collection, error)
	ListCollections(ctx context.Context, filter types.CollectionFilter) ([]*types.Collection, error)
	GetNode(ctx context.Context, nodeID string) (*types.TreeNode, error)
	AncestorsOf(ctx context.Context, nodeID string) ([]*types.TreeNode, error)
	DescendantsOf(ctx context.Context, nodeID string, filter types.NodeFilter) ([]*types.TreeNode, error)
	CanonicalNode(ctx context.Context, collectionID string) (*types.TreeNode, error)
}

// Catalog answers hierarchical queries over a Source.
type Catalog struct {
	src Source
	log zerolog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Catalog) {
		c.log = l.With().Str("component", "catalog").Logger()
	}
}

// New returns a Catalog reading from src.
func New(src Source, opts ...Option) *Catalog {
	c := &Catalog{src: src, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolve finds the effective collection and start position of an
// operation. A reference collection is replaced by its target exactly once.
// An explicit nodeID must be a position of the named collection; when that
// collection is a reference, the target's canonical position is used
// instead. The effective collection is returned even when the error is
// ErrDetachedNode.
func (c *Catalog) resolve(ctx context.Context, collectionID, nodeID string) (*types.Collection, *types.TreeNode, error) {
	coll, err := c.src.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}

	var node *types.TreeNode
	if nodeID != "" {
		node, err = c.src.GetNode(ctx, nodeID)
		if err != nil {
			return nil, nil, err
		}
		if node.CollectionID != coll.CollectionID {
			return nil, nil, fmt.Errorf("%w: node %s belongs to %s, not %s",
				types.ErrNodeMismatch, nodeID, node.CollectionID, coll.CollectionID)
		}
	}

	if coll.Kind() == types.KindReference {
		target, err := c.src.GetCollection(ctx, *coll.ReferenceID)
		if err != nil {
			return nil, nil, fmt.Errorf("dereferencing %s: %w", coll.Name, err)
		}
		if target.Kind() == types.KindReference {
			return nil, nil, fmt.Errorf("%w: %s -> %s", types.ErrChainedReference, coll.Name, target.Name)
		}
		coll, node = target, nil
	}

	if node == nil {
		node, err = c.src.CanonicalNode(ctx, coll.CollectionID)
		if err != nil {
			return coll, nil, err
		}
	}
	return coll, node, nil
}

// isDetached reports whether err means the collection has no position.
func isDetached(err error) bool {
	return errors.Is(err, types.ErrDetachedNode)
}
