// Tests for collection records.
package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

func strPtr(s string) *string { return &s }

func TestCreateCollection(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, b *Backend)
	}{
		{
			name: "create assigns ID, slug and timestamps",
			check: func(t *testing.T, b *Backend) {
				c := &types.Collection{Name: "Rare Books", Query: strPtr("type:book AND rare")}
				id, err := b.CreateCollection(context.Background(), c)
				require.NoError(t, err)
				assert.NotEmpty(t, id)
				assert.Equal(t, id, c.CollectionID)
				assert.Equal(t, "rare-books", c.Slug)
				assert.False(t, c.CreatedAt.IsZero())

				got, err := b.GetCollection(context.Background(), id)
				require.NoError(t, err)
				assert.Equal(t, "Rare Books", got.Name)
				require.NotNil(t, got.Query)
				assert.Equal(t, "type:book AND rare", *got.Query)
				assert.Nil(t, got.ReferenceID)
			},
		},
		{
			name: "duplicate name is rejected",
			check: func(t *testing.T, b *Backend) {
				mustCollection(t, b, "Maps")
				_, err := b.CreateCollection(context.Background(), &types.Collection{Name: "Maps"})
				assert.ErrorIs(t, err, types.ErrDuplicateName)
			},
		},
		{
			name: "names that slug alike are rejected",
			check: func(t *testing.T, b *Backend) {
				mustCollection(t, b, "Old Maps")
				_, err := b.CreateCollection(context.Background(), &types.Collection{Name: "old  maps"})
				assert.ErrorIs(t, err, types.ErrDuplicateName)
			},
		},
		{
			name: "invalid names are rejected",
			check: func(t *testing.T, b *Backend) {
				for _, name := range []string{"", "a/b"} {
					_, err := b.CreateCollection(context.Background(), &types.Collection{Name: name})
					assert.ErrorIs(t, err, types.ErrInvalidName, "name %q", name)
				}
			},
		},
		{
			name: "reference to a reference is rejected",
			check: func(t *testing.T, b *Backend) {
				ctx := context.Background()
				target := mustCollection(t, b, "Target")
				ref := &types.Collection{Name: "Ref", ReferenceID: strPtr(target)}
				_, err := b.CreateCollection(ctx, ref)
				require.NoError(t, err)
				assert.Equal(t, types.KindReference, ref.Kind())

				_, err = b.CreateCollection(ctx, &types.Collection{Name: "Ref2", ReferenceID: strPtr(ref.CollectionID)})
				assert.ErrorIs(t, err, types.ErrChainedReference)
			},
		},
		{
			name: "reference to a missing collection is ErrNotFound",
			check: func(t *testing.T, b *Backend) {
				_, err := b.CreateCollection(context.Background(), &types.Collection{Name: "Ref", ReferenceID: strPtr("missing")})
				assert.ErrorIs(t, err, types.ErrNotFound)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, setupBackend(t))
		})
	}
}

func TestUpdateCollection(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	id := mustCollection(t, b, "Draft")
	mustCollection(t, b, "Taken")

	c, err := b.GetCollection(ctx, id)
	require.NoError(t, err)
	c.Name = "Final"
	c.Query = strPtr("status:final")
	require.NoError(t, b.UpdateCollection(ctx, c))

	got, err := b.GetCollectionByName(ctx, "Final")
	require.NoError(t, err)
	assert.Equal(t, id, got.CollectionID)
	assert.Equal(t, "final", got.Slug)
	assert.True(t, got.HasQuery())

	c.Name = "Taken"
	assert.ErrorIs(t, b.UpdateCollection(ctx, c), types.ErrDuplicateName)

	c.Name = "Final"
	c.ReferenceID = strPtr(id)
	assert.ErrorIs(t, b.UpdateCollection(ctx, c), types.ErrChainedReference, "self reference")

	// A collection that is referenced cannot itself become a reference.
	other := mustCollection(t, b, "Other")
	_, err = b.CreateCollection(ctx, &types.Collection{Name: "Points At Final", ReferenceID: strPtr(id)})
	require.NoError(t, err)
	c.ReferenceID = strPtr(other)
	assert.ErrorIs(t, b.UpdateCollection(ctx, c), types.ErrChainedReference)

	assert.ErrorIs(t, b.UpdateCollection(ctx, &types.Collection{CollectionID: "missing", Name: "X"}), types.ErrNotFound)
}

func TestListCollections(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	for i := range 5 {
		c := &types.Collection{Name: fmt.Sprintf("C%d", i)}
		if i%2 == 0 {
			c.Query = strPtr(fmt.Sprintf("q%d", i))
		}
		_, err := b.CreateCollection(ctx, c)
		require.NoError(t, err)
	}

	all, err := b.ListCollections(ctx, types.CollectionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "C0", all[0].Name)

	yes := true
	withQuery, err := b.ListCollections(ctx, types.CollectionFilter{HasQuery: &yes})
	require.NoError(t, err)
	assert.Len(t, withQuery, 3)

	page, err := b.ListCollections(ctx, types.CollectionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "C1", page[0].Name)

	rest, err := b.ListCollections(ctx, types.CollectionFilter{Offset: 3})
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	byName, err := b.ListCollections(ctx, types.CollectionFilter{Name: "C3"})
	require.NoError(t, err)
	require.Len(t, byName, 1)

	byID, err := b.CollectionsByID(ctx, []string{byName[0].CollectionID, "missing"})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
	assert.Equal(t, "C3", byID[byName[0].CollectionID].Name)
}

func TestRootCollections(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	r := mustAttach(t, b, "Root", nil)
	mustAttach(t, b, "Child", r)
	mustCollection(t, b, "Loose")

	roots, err := b.RootCollections(ctx)
	require.NoError(t, err)
	names := make([]string, len(roots))
	for i, c := range roots {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Loose", "Root"}, names)
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	r := mustAttach(t, b, "Root", nil)
	a := mustAttach(t, b, "A", r)
	inner := mustAttach(t, b, "Inner", a)
	keep := mustAttach(t, b, "Keep", r)
	// A second position of A, nested under Keep.
	_, err := b.Attach(ctx, a.CollectionID, types.AttachOptions{ParentID: keep.NodeID})
	require.NoError(t, err)
	_, err = b.AddFacet(ctx, a.CollectionID, 1, "year")
	require.NoError(t, err)
	ref := &types.Collection{Name: "RefA", ReferenceID: strPtr(a.CollectionID)}
	_, err = b.CreateCollection(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, b.DeleteCollection(ctx, a.CollectionID))
	requireValidTree(t, b, r.TreeID)

	_, err = b.GetCollection(ctx, a.CollectionID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = b.GetNode(ctx, inner.NodeID)
	assert.ErrorIs(t, err, types.ErrNotFound, "subtree positions go with the collection")
	assert.True(t, reload(t, b, keep.NodeID).IsLeaf())

	got, err := b.GetCollection(ctx, ref.CollectionID)
	require.NoError(t, err)
	assert.Nil(t, got.ReferenceID, "references to a deleted collection are cleared")

	facets, err := b.Facets(ctx, a.CollectionID)
	require.NoError(t, err)
	assert.Empty(t, facets)

	assert.ErrorIs(t, b.DeleteCollection(ctx, a.CollectionID), types.ErrNotFound)
}
