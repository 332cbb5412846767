package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/catalog/pkg/types"
)

// env is one isolated config and data directory pair.
type env struct {
	t         *testing.T
	configDir string
	dataDir   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	return &env{t: t, configDir: filepath.Join(root, "config"), dataDir: filepath.Join(root, "data")}
}

// run executes the CLI and returns stdout, stderr and the exit code.
func (e *env) run(args ...string) (string, string, int) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...)
	code := runWith(full, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// ok runs the CLI and requires success.
func (e *env) ok(args ...string) string {
	e.t.Helper()
	out, errOut, code := e.run(args...)
	require.Equal(e.t, exitSuccess, code, "catalog %s: %s", strings.Join(args, " "), errOut)
	return out
}

// attach places name under parent and returns the new node ID.
func (e *env) attach(name, parent string, extra ...string) string {
	e.t.Helper()
	args := []string{"--json", "attach", name}
	if parent != "" {
		args = append(args, "--parent", parent)
	}
	var n types.TreeNode
	require.NoError(e.t, json.Unmarshal([]byte(e.ok(append(args, extra...)...)), &n))
	return n.NodeID
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out := e.ok("version")
	assert.Contains(t, out, "catalog v")
	assert.Contains(t, out, modulePath)

	_, err := os.Stat(e.configDir)
	assert.True(t, os.IsNotExist(err), "version does not touch the config directory")
}

func TestInit(t *testing.T) {
	e := newEnv(t)
	out := e.ok("init")
	assert.Contains(t, out, "Catalog initialized")

	assert.FileExists(t, filepath.Join(e.configDir, configFileExt))
	for _, f := range []string{"collections.jsonl", "tree_nodes.jsonl", "facets.jsonl"} {
		assert.FileExists(t, filepath.Join(e.dataDir, f))
	}

	// A second init keeps the existing config.
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte("backend: sqlite\nlog_level: error\n"), 0o644))
	e.ok("init")
	data, err := os.ReadFile(filepath.Join(e.configDir, configFileExt))
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_level: error")
}

func TestConfigErrors(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(e.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.configDir, configFileExt), []byte("backend: postgres\n"), 0o644))

	_, errOut, code := e.run("list")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, types.ErrBackendUnknown.Error())
}

func TestCollectionCommands(t *testing.T) {
	e := newEnv(t)

	out := e.ok("create", "Books", "--query", "type:book")
	assert.Contains(t, out, "Created collection Books")
	e.ok("create", "Shelf")
	e.ok("create", "Alias", "--reference", "Books")

	var colls []types.Collection
	require.NoError(t, json.Unmarshal([]byte(e.ok("--json", "list")), &colls))
	require.Len(t, colls, 3)
	assert.Equal(t, "Alias", colls[0].Name)
	require.NotNil(t, colls[0].ReferenceID)
	assert.Equal(t, colls[1].CollectionID, *colls[0].ReferenceID)

	out = e.ok("list", "--with-query")
	assert.Contains(t, out, "Books")
	assert.NotContains(t, out, "Shelf")

	e.ok("rename", "Shelf", "Cabinet")
	out = e.ok("list")
	assert.Contains(t, out, "Cabinet")
	assert.NotContains(t, out, "Shelf")

	_, errOut, code := e.run("create", "Books")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, types.ErrDuplicateName.Error())

	_, _, code = e.run("create", "a/b")
	assert.Equal(t, exitUserError, code)

	e.ok("delete", "Cabinet")
	_, _, code = e.run("delete", "Cabinet")
	assert.Equal(t, exitUserError, code)
}

func TestTreeCommands(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"R", "C1", "C2", "C4"} {
		e.ok("create", name)
	}
	r := e.attach("R", "")
	c1 := e.attach("C1", r)
	c2 := e.attach("C2", c1)
	c4 := e.attach("C4", r)

	out := e.ok("drilldown", "R")
	assert.Equal(t, "R  "+r+"\n  C1  "+c1+"\n    C2  "+c2+"\n  C4  "+c4, trimmed(out))

	assert.Equal(t, "R/C1/C2\n", e.ok("path", "C2"))

	_, errOut, code := e.run("move", r, "--parent", c2)
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, types.ErrCyclicMove.Error())

	e.ok("move", c2, "--parent", r, "--position", "0")
	out = e.ok("drilldown", "R")
	assert.Equal(t, "R  "+r+"\n  C2  "+c2+"\n  C1  "+c1+"\n  C4  "+c4, trimmed(out))
	assert.Equal(t, "R/C2\n", e.ok("path", "C2"))

	var nodes []types.TreeNode
	require.NoError(t, json.Unmarshal([]byte(e.ok("--json", "nodes", "C1")), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, c1, nodes[0].NodeID)
	assert.Equal(t, r, nodes[0].TreeID)

	assert.Equal(t, "1 trees ok\n", e.ok("check"))

	e.ok("detach", c1)
	_, errOut, code = e.run("path", "C1")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, types.ErrDetachedNode.Error())

	_, _, code = e.run("attach", "C1", "--parent", "missing")
	assert.Equal(t, exitUserError, code)
}

func TestDrilldownFlags(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"R", "V", "X", "H"} {
		e.ok("create", name)
	}
	r := e.attach("R", "")
	v := e.attach("V", r, "--virtual")
	e.attach("X", v)
	e.attach("H", r, "--invisible")

	assert.Equal(t, "R", names(e.ok("drilldown", "R")))
	assert.Equal(t, "R\n  V\n    X", names(e.ok("drilldown", "R", "--show-virtual")))
	assert.Equal(t, "R\n  X", names(e.ok("drilldown", "R", "--reparent")))
	assert.Equal(t, "R\n  H", names(e.ok("drilldown", "R", "--show-invisible")))

	assert.Equal(t, "V/X\n", e.ok("path", "X"))
	assert.Equal(t, "R/V/X\n", e.ok("path", "X", "--follow-virtual"))

	var tree types.Tree
	require.NoError(t, yaml.Unmarshal([]byte(e.ok("-o", "yaml", "drilldown", "R", "--show-virtual")), &tree))
	assert.Equal(t, "R", tree.Collection.Name)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "V", tree.Children[0].Collection.Name)

	_, _, code := e.run("-o", "xml", "drilldown", "R")
	assert.Equal(t, exitUserError, code)
}

func TestFacetCommands(t *testing.T) {
	e := newEnv(t)
	e.ok("create", "Books")

	e.ok("facet", "add", "Books", "1", "author")
	e.ok("facet", "add", "Books", "0", "year")

	out := e.ok("facet", "list", "Books")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "0  year"))
	assert.True(t, strings.HasPrefix(lines[1], "1  author"))

	_, errOut, code := e.run("facet", "add", "Books", "1", "title")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, types.ErrPositionTaken.Error())

	_, _, code = e.run("facet", "add", "Books", "x", "title")
	assert.Equal(t, exitUserError, code)

	var facets []types.FacetAssignment
	require.NoError(t, json.Unmarshal([]byte(e.ok("--json", "facet", "list", "Books")), &facets))
	e.ok("facet", "remove", facets[0].FacetID)
	assert.NotContains(t, e.ok("facet", "list", "Books"), "year")
}

func TestStatePersistsAcrossInvocations(t *testing.T) {
	e := newEnv(t)
	e.ok("create", "R")
	e.ok("create", "C")
	r := e.attach("R", "")
	e.attach("C", r)

	// Each invocation reopens the store from the JSONL snapshots.
	assert.Equal(t, "R/C\n", e.ok("path", "C"))
}

func TestMetricsFlag(t *testing.T) {
	e := newEnv(t)
	_, errOut, code := e.run("--metrics", "create", "Books")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, errOut, `catalog_operations_total{operation="create_collection",status="success"} 1`)
}

func TestExitCodes(t *testing.T) {
	e := newEnv(t)
	_, _, code := e.run("drilldown")
	assert.Equal(t, exitUserError, code, "missing argument")

	_, _, code = e.run("list", "--no-such-flag")
	assert.Equal(t, exitUserError, code)

	_, errOut, code := e.run("drilldown", "missing")
	assert.Equal(t, exitUserError, code)
	assert.Contains(t, errOut, types.ErrNotFound.Error())
}

// trimmed drops the trailing newline.
func trimmed(out string) string {
	return strings.TrimRight(out, "\n ")
}

// names keeps the indented collection names of drilldown output.
func names(out string) string {
	var lines []string
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		indent := len(l) - len(strings.TrimLeft(l, " "))
		lines = append(lines, l[:indent]+strings.Fields(l)[0])
	}
	return strings.Join(lines, "\n")
}

func TestSourcesCommand(t *testing.T) {
	e := newEnv(t)
	e.ok("create", "Root")
	e.ok("create", "Books", "--query", "type:book")
	e.ok("create", "Remote", "--query", "hostedcollection:x")
	r := e.attach("Root", "")
	e.attach("Books", r)
	e.attach("Remote", r)

	assert.Equal(t, "Books  \"type:book\"  +Root\n", e.ok("sources"))
}
