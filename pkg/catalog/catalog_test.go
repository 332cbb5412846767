package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/catalog/pkg/sqlite"
	"github.com/mesh-intelligence/catalog/pkg/types"
)

// fixture is an open SQLite store plus a Catalog over it.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store types.Store
	cat   *Catalog
}

func setupCatalog(t *testing.T) *fixture {
	t.Helper()
	store := sqlite.NewBackend()
	require.NoError(t, store.Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Close() })
	return &fixture{t: t, ctx: context.Background(), store: store, cat: New(store)}
}

func (f *fixture) collection(name string, mods ...func(*types.Collection)) *types.Collection {
	f.t.Helper()
	c := &types.Collection{Name: name}
	for _, m := range mods {
		m(c)
	}
	_, err := f.store.CreateCollection(f.ctx, c)
	require.NoError(f.t, err)
	return c
}

// place attaches an existing collection under parent, or as a root.
func (f *fixture) place(collectionID string, parent *types.TreeNode, mods ...func(*types.AttachOptions)) *types.TreeNode {
	f.t.Helper()
	var o types.AttachOptions
	if parent != nil {
		o.ParentID = parent.NodeID
	}
	for _, m := range mods {
		m(&o)
	}
	n, err := f.store.Attach(f.ctx, collectionID, o)
	require.NoError(f.t, err)
	return n
}

// node creates a collection and attaches it.
func (f *fixture) node(name string, parent *types.TreeNode, mods ...func(*types.AttachOptions)) *types.TreeNode {
	f.t.Helper()
	return f.place(f.collection(name).CollectionID, parent, mods...)
}

func virtual(o *types.AttachOptions) {
	v := true
	o.Virtual = &v
}

func invisible(o *types.AttachOptions) {
	v := false
	o.Visible = &v
}

func withQuery(q string) func(*types.Collection) {
	return func(c *types.Collection) { c.Query = &q }
}

func referencing(id string) func(*types.Collection) {
	return func(c *types.Collection) { c.ReferenceID = &id }
}

func nodeIDs(nodes []*types.TreeNode) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.NodeID
	}
	return ids
}

// childNames lists the collection names of a tree's direct children.
func childNames(t *types.Tree) []string {
	names := make([]string, len(t.Children))
	for i, c := range t.Children {
		names[i] = c.Collection.Name
	}
	return names
}
