package types

import "context"

// CollectionFilter narrows ListCollections. Zero values do not filter.
type CollectionFilter struct {
	Name     string
	HasQuery *bool
	Limit    int
	Offset   int
}

// CollectionStore manages collection records.
type CollectionStore interface {
	// CreateCollection validates c, assigns a UUID v7 and timestamps, and
	// stores it. Returns ErrInvalidName or ErrDuplicateName on rejection.
	CreateCollection(ctx context.Context, c *Collection) (string, error)

	// GetCollection returns ErrNotFound if no collection has the ID.
	GetCollection(ctx context.Context, id string) (*Collection, error)

	// GetCollectionByName looks a collection up by its exact name.
	GetCollectionByName(ctx context.Context, name string) (*Collection, error)

	// CollectionsByID loads several collections at once. Unknown IDs are
	// absent from the result.
	CollectionsByID(ctx context.Context, ids []string) (map[string]*Collection, error)

	// ListCollections returns collections ordered by name.
	ListCollections(ctx context.Context, filter CollectionFilter) ([]*Collection, error)

	// RootCollections returns collections that have no tree position or
	// that sit at the root of a tree.
	RootCollections(ctx context.Context) ([]*Collection, error)

	// UpdateCollection rewrites name, query and reference of an existing
	// collection.
	UpdateCollection(ctx context.Context, c *Collection) error

	// DeleteCollection removes the collection, every tree position it
	// occupies together with the subtrees below them, and its facets.
	// References pointing at it are cleared.
	DeleteCollection(ctx context.Context, id string) error
}

// TreeIndex maintains nested-set positions. It knows nothing about
// visibility policy or references beyond what NodeFilter expresses.
type TreeIndex interface {
	Attach(ctx context.Context, collectionID string, opts AttachOptions) (*TreeNode, error)
	Move(ctx context.Context, nodeID string, opts MoveOptions) error
	DetachAndDelete(ctx context.Context, nodeID string) error

	// AncestorsOf returns the ancestors of the node in root-to-node order.
	AncestorsOf(ctx context.Context, nodeID string) ([]*TreeNode, error)

	// DescendantsOf returns matching descendants in pre-order.
	DescendantsOf(ctx context.Context, nodeID string, filter NodeFilter) ([]*TreeNode, error)

	GetNode(ctx context.Context, nodeID string) (*TreeNode, error)

	// NodesOf returns every position of a collection, oldest first.
	NodesOf(ctx context.Context, collectionID string) ([]*TreeNode, error)

	// CanonicalNode returns the oldest visible, non-virtual position of the
	// collection, else its oldest position. ErrDetachedNode if it has none.
	CanonicalNode(ctx context.Context, collectionID string) (*TreeNode, error)

	// CheckTree verifies that the bounds of one tree nest properly.
	CheckTree(ctx context.Context, treeID string) error

	// TreeIDs lists every tree, that is the node ID of every root.
	TreeIDs(ctx context.Context) ([]string, error)
}

// FacetRegistry keeps the ranked facet list of each collection. The
// Is* pre-checks are advisory: a concurrent writer can pass the same check
// before either inserts.
type FacetRegistry interface {
	IsPositionTaken(ctx context.Context, collectionID string, order int) (bool, error)
	IsDuplicateFacet(ctx context.Context, collectionID, facetName string) (bool, error)
	AddFacet(ctx context.Context, collectionID string, order int, facetName string) (*FacetAssignment, error)
	RemoveFacet(ctx context.Context, facetID string) error
	Facets(ctx context.Context, collectionID string) ([]*FacetAssignment, error)
}

// Store is a complete catalog backend.
type Store interface {
	CollectionStore
	TreeIndex
	FacetRegistry

	// Open connects the store to the backend described by config.
	// Returns ErrAlreadyOpen if called while open.
	Open(config Config) error

	// Close releases backend resources. Idempotent. After Close, operations
	// return ErrCatalogClosed.
	Close() error
}
