// Tests for the backend lifecycle and JSONL persistence.
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/catalog/internal/metrics"
	"github.com/mesh-intelligence/catalog/pkg/types"
)

func testConfig(dir string) types.Config {
	return types.Config{Backend: types.BackendSQLite, DataDir: dir}
}

func setupBackend(t *testing.T, opts ...Option) *Backend {
	t.Helper()
	b := NewBackend(opts...)
	require.NoError(t, b.Open(testConfig(t.TempDir())))
	t.Cleanup(func() { b.Close() })
	return b
}

// mustCollection creates a plain collection and returns its ID.
func mustCollection(t *testing.T, b *Backend, name string) string {
	t.Helper()
	id, err := b.CreateCollection(context.Background(), &types.Collection{Name: name})
	require.NoError(t, err)
	return id
}

// mustAttach places a new collection named name under parent (or as a new
// root when parent is nil).
func mustAttach(t *testing.T, b *Backend, name string, parent *types.TreeNode, opts ...func(*types.AttachOptions)) *types.TreeNode {
	t.Helper()
	var o types.AttachOptions
	if parent != nil {
		o.ParentID = parent.NodeID
	}
	for _, fn := range opts {
		fn(&o)
	}
	n, err := b.Attach(context.Background(), mustCollection(t, b, name), o)
	require.NoError(t, err)
	return n
}

func virtual(o *types.AttachOptions) {
	v := true
	o.Virtual = &v
}

func invisible(o *types.AttachOptions) {
	v := false
	o.Visible = &v
}

func reload(t *testing.T, b *Backend, nodeID string) *types.TreeNode {
	t.Helper()
	n, err := b.GetNode(context.Background(), nodeID)
	require.NoError(t, err)
	return n
}

func requireValidTree(t *testing.T, b *Backend, treeID string) {
	t.Helper()
	require.NoError(t, b.CheckTree(context.Background(), treeID))
}

func TestBackend_Open(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Open(testConfig(dir)))
	defer b.Close()

	_, err := os.Stat(filepath.Join(dir, dbFileName))
	assert.NoError(t, err, "catalog.db should exist")
	for _, st := range snapshotTables {
		_, err := os.Stat(filepath.Join(dir, st.file))
		assert.NoError(t, err, "%s should exist", st.file)
	}

	assert.ErrorIs(t, b.Open(testConfig(dir)), types.ErrAlreadyOpen)
}

func TestBackend_OpenRejectsBadConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Open(types.Config{DataDir: t.TempDir()}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Open(types.Config{Backend: "postgres", DataDir: t.TempDir()}), types.ErrBackendUnknown)
}

func TestBackend_Close(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Open(testConfig(t.TempDir())))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "Close should be idempotent")

	ctx := context.Background()
	_, err := b.CreateCollection(ctx, &types.Collection{Name: "x"})
	assert.ErrorIs(t, err, types.ErrCatalogClosed)
	_, err = b.Attach(ctx, "c", types.AttachOptions{})
	assert.ErrorIs(t, err, types.ErrCatalogClosed)
	_, err = b.DescendantsOf(ctx, "n", types.NodeFilter{})
	assert.ErrorIs(t, err, types.ErrCatalogClosed)
	_, err = b.Facets(ctx, "c")
	assert.ErrorIs(t, err, types.ErrCatalogClosed)
}

func TestBackend_ReopenRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b := NewBackend()
	require.NoError(t, b.Open(testConfig(dir)))
	root := mustAttach(t, b, "Root", nil)
	child := mustAttach(t, b, "Child", root, virtual)
	_, err := b.AddFacet(ctx, root.CollectionID, 1, "year")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b2 := NewBackend()
	require.NoError(t, b2.Open(testConfig(dir)))
	defer b2.Close()

	got := reload(t, b2, child.NodeID)
	assert.Equal(t, child.Position, got.Position)
	assert.True(t, got.Virtual)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, root.NodeID, *got.ParentID)
	requireValidTree(t, b2, root.TreeID)

	c, err := b2.GetCollection(ctx, root.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, "Root", c.Name)
	assert.Equal(t, "root", c.Slug)

	facets, err := b2.Facets(ctx, root.CollectionID)
	require.NoError(t, err)
	require.Len(t, facets, 1)
	assert.Equal(t, "year", facets[0].FacetName)
}

func TestBackend_SyncOnCloseDefersSnapshot(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	cfg := testConfig(dir)
	cfg.SyncStrategy = types.SyncOnClose
	require.NoError(t, b.Open(cfg))

	mustCollection(t, b, "Deferred")

	data, err := os.ReadFile(filepath.Join(dir, "collections.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, data, "snapshot should not be written before Close")

	require.NoError(t, b.Close())
	data, err = os.ReadFile(filepath.Join(dir, "collections.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"Deferred"`)
}

func TestBackend_LoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		`{"collection_id":"c1","name":"Good","slug":"good","created_at":"2024-01-01T00:00:00.000000000Z","updated_at":"2024-01-01T00:00:00.000000000Z"}`,
		`{not json`,
		``,
		`{"collection_id":"c2","name":"Also","slug":"also","created_at":"2024-01-01T00:00:00.000000000Z","updated_at":"2024-01-01T00:00:00.000000000Z","future_field":1}`,
		`{"collection_id":"c3","name":"Good","slug":"good-2","created_at":"2024-01-01T00:00:00.000000000Z","updated_at":"2024-01-01T00:00:00.000000000Z"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "collections.jsonl"), []byte(content), 0o644))
	nodes := `{"node_id":"n1","collection_id":"c1","tree_id":"n1","lft":1,"rgt":4,"depth":0,"is_visible":1,"is_virtual":0,"created_at":"2024-01-01T00:00:00.000000000Z"}
{"node_id":"n2","collection_id":"c2","parent_id":"n1","tree_id":"n1","lft":2,"rgt":3,"depth":1,"is_visible":1,"is_virtual":0,"created_at":"2024-01-01T00:00:00.000000000Z"}
{"node_id":"n9","collection_id":"missing","tree_id":"n9","lft":1,"rgt":2,"depth":0,"is_visible":1,"is_virtual":0,"created_at":"2024-01-01T00:00:00.000000000Z"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tree_nodes.jsonl"), []byte(nodes), 0o644))

	b := NewBackend()
	require.NoError(t, b.Open(testConfig(dir)))
	defer b.Close()

	ctx := context.Background()
	all, err := b.ListCollections(ctx, types.CollectionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2, "malformed and duplicate records are skipped")
	assert.Equal(t, "Also", all[0].Name)
	assert.Equal(t, "Good", all[1].Name)

	requireValidTree(t, b, "n1")
	_, err = b.GetNode(ctx, "n9")
	assert.ErrorIs(t, err, types.ErrNotFound, "orphaned positions are dropped")
}

func TestBackend_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := setupBackend(t, WithMetrics(m))
	ctx := context.Background()

	root := mustAttach(t, b, "Root", nil)
	mustAttach(t, b, "A", root)
	_, err := b.Attach(ctx, "no-such-collection", types.AttachOptions{})
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("attach", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("attach", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TreeNodes))
}

func TestDSN(t *testing.T) {
	d := dsn("/data/catalog.db")
	assert.True(t, strings.HasPrefix(d, "file:/data/catalog.db?"))
	assert.Contains(t, d, "_pragma=foreign_keys(1)")
	assert.Contains(t, d, "_pragma=journal_mode(WAL)")
	assert.Contains(t, d, "_txlock=immediate")
}
