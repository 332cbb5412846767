//go:build mage

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Smoke builds the binary and drives it through create, attach, move,
// drilldown, path and check in a throwaway directory.
func Smoke() error {
	mg.Deps(Build)

	dir, err := os.MkdirTemp("", "catalog-smoke-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	bin, err := filepath.Abs(filepath.Join(binaryDir, binaryName))
	if err != nil {
		return err
	}
	run := func(args ...string) (string, error) {
		full := append([]string{"--config-dir", filepath.Join(dir, "config"), "--data-dir", filepath.Join(dir, "data")}, args...)
		return sh.Output(bin, full...)
	}
	attach := func(name, parent string) (string, error) {
		args := []string{"--json", "attach", name}
		if parent != "" {
			args = append(args, "--parent", parent)
		}
		out, err := run(args...)
		if err != nil {
			return "", err
		}
		var node struct {
			NodeID string `json:"node_id"`
		}
		if err := json.Unmarshal([]byte(out), &node); err != nil {
			return "", fmt.Errorf("attach %s: %w", name, err)
		}
		return node.NodeID, nil
	}

	for _, name := range []string{"Library", "Fiction", "Poetry", "Maps"} {
		if _, err := run("create", name); err != nil {
			return err
		}
	}
	root, err := attach("Library", "")
	if err != nil {
		return err
	}
	fiction, err := attach("Fiction", root)
	if err != nil {
		return err
	}
	poetry, err := attach("Poetry", fiction)
	if err != nil {
		return err
	}
	if _, err := attach("Maps", root); err != nil {
		return err
	}
	if _, err := run("move", poetry, "--parent", root, "--position", "0"); err != nil {
		return err
	}

	path, err := run("path", "Poetry")
	if err != nil {
		return err
	}
	if path != "Library/Poetry" {
		return fmt.Errorf("path after move: got %q", path)
	}
	tree, err := run("drilldown", "Library")
	if err != nil {
		return err
	}
	fmt.Println(tree)
	if lines := strings.Split(tree, "\n"); len(lines) != 4 {
		return fmt.Errorf("drilldown: want 4 lines, got %d", len(lines))
	}
	_, err = run("check")
	return err
}
