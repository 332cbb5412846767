// This file implements the nested-set tree index. Every structural mutation
// is one transaction that shifts bounds so that, per tree, the intervals
// [lft, rgt] stay a properly nested bracket sequence over 1..2N.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mesh-intelligence/catalog/internal/logger"
	"github.com/mesh-intelligence/catalog/pkg/types"
)

// moveMarkerPrefix tags a subtree that has been lifted out of its tree for
// the duration of a move.
const moveMarkerPrefix = "~move~"

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*types.TreeNode, error) {
	var (
		n         types.TreeNode
		parentID  sql.NullString
		visible   int64
		virtual   int64
		createdAt string
	)
	if err := s.Scan(&n.NodeID, &n.CollectionID, &parentID, &n.TreeID, &n.Left, &n.Right,
		&n.Depth, &visible, &virtual, &createdAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		p := parentID.String
		n.ParentID = &p
	}
	n.Visible = visible != 0
	n.Virtual = virtual != 0
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*types.TreeNode, error) {
	defer rows.Close()

	nodes := []*types.TreeNode{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tree node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// qualify prefixes every column of a select list with alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func getNode(ctx context.Context, q queryer, nodeID string) (*types.TreeNode, error) {
	if nodeID == "" {
		return nil, types.ErrInvalidID
	}
	row := q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM tree_nodes WHERE node_id = ?", nodeID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tree node %s: %w", nodeID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting tree node %s: %w", nodeID, err)
	}
	return n, nil
}

// getParent reads a prospective parent. A missing parent is ErrInvalidParent.
func getParent(ctx context.Context, q queryer, parentID string) (*types.TreeNode, error) {
	p, err := getNode(ctx, q, parentID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("%w: parent %s does not exist", types.ErrInvalidParent, parentID)
	}
	return p, err
}

func insertNode(ctx context.Context, tx *sql.Tx, n *types.TreeNode) error {
	var parentID any
	if n.ParentID != nil {
		parentID = *n.ParentID
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO tree_nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		n.NodeID, n.CollectionID, parentID, n.TreeID, n.Left, n.Right, n.Depth,
		boolToInt(n.Visible), boolToInt(n.Virtual), formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting tree node: %w", err)
	}
	return nil
}

// insertionPoint returns the bound at which a new child of parent starts:
// the lft of the position-th existing child, or parent.rgt to append.
func insertionPoint(ctx context.Context, q queryer, parent *types.TreeNode, position *int) (int64, error) {
	if position == nil {
		return parent.Right, nil
	}
	offset := max(*position, 0)

	var lft int64
	err := q.QueryRowContext(ctx,
		`SELECT lft FROM tree_nodes
		 WHERE tree_id = ? AND lft > ? AND rgt < ? AND depth = ?
		 ORDER BY lft LIMIT 1 OFFSET ?`,
		parent.TreeID, parent.Left, parent.Right, parent.Depth+1, offset,
	).Scan(&lft)
	if errors.Is(err, sql.ErrNoRows) {
		return parent.Right, nil
	}
	if err != nil {
		return 0, fmt.Errorf("locating child %d of %s: %w", offset, parent.NodeID, err)
	}
	return lft, nil
}

// openGap makes room for width bounds starting at ins.
func openGap(ctx context.Context, tx *sql.Tx, treeID string, ins, width int64) (int64, error) {
	r, err := tx.ExecContext(ctx,
		"UPDATE tree_nodes SET rgt = rgt + ? WHERE tree_id = ? AND rgt >= ?", width, treeID, ins)
	if err != nil {
		return 0, fmt.Errorf("shifting right bounds: %w", err)
	}
	n1, _ := r.RowsAffected()
	r, err = tx.ExecContext(ctx,
		"UPDATE tree_nodes SET lft = lft + ? WHERE tree_id = ? AND lft >= ?", width, treeID, ins)
	if err != nil {
		return 0, fmt.Errorf("shifting left bounds: %w", err)
	}
	n2, _ := r.RowsAffected()
	return n1 + n2, nil
}

// closeGap removes the width bounds that ended at right.
func closeGap(ctx context.Context, tx *sql.Tx, treeID string, right, width int64) (int64, error) {
	r, err := tx.ExecContext(ctx,
		"UPDATE tree_nodes SET lft = lft - ? WHERE tree_id = ? AND lft > ?", width, treeID, right)
	if err != nil {
		return 0, fmt.Errorf("shifting left bounds: %w", err)
	}
	n1, _ := r.RowsAffected()
	r, err = tx.ExecContext(ctx,
		"UPDATE tree_nodes SET rgt = rgt - ? WHERE tree_id = ? AND rgt > ?", width, treeID, right)
	if err != nil {
		return 0, fmt.Errorf("shifting right bounds: %w", err)
	}
	n2, _ := r.RowsAffected()
	return n1 + n2, nil
}

// track starts timing a mutation. The returned func counts and logs it.
func (b *Backend) track(operation string) func(nodeID, treeID string, err error) {
	start := time.Now()
	return func(nodeID, treeID string, err error) {
		b.observe(operation, start, err)
		logger.LogMutation(b.log, operation, nodeID, treeID, time.Since(start), err)
	}
}

// finishTreeWrite publishes metrics and persists tree_nodes after a commit.
func (b *Backend) finishTreeWrite(ctx context.Context, shifted int64) error {
	b.metrics.ObserveShift(shifted)
	b.refreshNodeGauge(ctx)
	return b.afterWrite(tableTreeNodes)
}

// Attach places a collection in the catalog. Without a parent the node
// becomes the root of a new tree whose ID is the node's ID. With a parent,
// every bound at or after the insertion point moves right by two.
func (b *Backend) Attach(ctx context.Context, collectionID string, opts types.AttachOptions) (node *types.TreeNode, err error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if collectionID == "" {
		return nil, types.ErrInvalidID
	}
	if opts.ParentID == "" && opts.TreeID != "" {
		return nil, fmt.Errorf("%w: tree %s given without a parent", types.ErrInvalidParent, opts.TreeID)
	}

	n := &types.TreeNode{
		NodeID:       generateUUID(),
		CollectionID: collectionID,
		Visible:      true,
		CreatedAt:    time.Now().UTC(),
	}
	if opts.Visible != nil {
		n.Visible = *opts.Visible
	}
	if opts.Virtual != nil {
		n.Virtual = *opts.Virtual
	}

	lockTree := n.NodeID
	done := b.track("attach")
	defer func() { done(n.NodeID, lockTree, err) }()

	if opts.ParentID != "" {
		parent, err := getParent(ctx, b.db, opts.ParentID)
		if err != nil {
			return nil, err
		}
		lockTree = parent.TreeID
	}
	release, err := b.locks.acquire(ctx, lockTree)
	if err != nil {
		return nil, err
	}
	defer release()

	var shifted int64
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireCollection(ctx, tx, collectionID); err != nil {
			return err
		}
		if opts.ParentID == "" {
			n.Position = types.Position{TreeID: n.NodeID, Left: 1, Right: 2, Depth: 0}
			return insertNode(ctx, tx, n)
		}

		parent, err := getParent(ctx, tx, opts.ParentID)
		if err != nil {
			return err
		}
		if opts.TreeID != "" && opts.TreeID != parent.TreeID {
			return fmt.Errorf("%w: parent %s is in tree %s, not %s",
				types.ErrInvalidParent, parent.NodeID, parent.TreeID, opts.TreeID)
		}
		ins, err := insertionPoint(ctx, tx, parent, opts.Position)
		if err != nil {
			return err
		}
		if shifted, err = openGap(ctx, tx, parent.TreeID, ins, 2); err != nil {
			return err
		}
		parentID := parent.NodeID
		n.ParentID = &parentID
		n.Position = types.Position{TreeID: parent.TreeID, Left: ins, Right: ins + 1, Depth: parent.Depth + 1}
		return insertNode(ctx, tx, n)
	})
	if err != nil {
		return nil, err
	}
	if err := b.finishTreeWrite(ctx, shifted); err != nil {
		return nil, err
	}
	return n, nil
}

// Move relocates the subtree rooted at nodeID under opts.ParentID, or makes
// it a tree of its own when ParentID is empty. Moving a node under itself or
// one of its descendants fails with ErrCyclicMove and changes nothing.
func (b *Backend) Move(ctx context.Context, nodeID string, opts types.MoveOptions) (err error) {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	var treeID string
	done := b.track("move")
	defer func() { done(nodeID, treeID, err) }()

	node, err := getNode(ctx, b.db, nodeID)
	if err != nil {
		return err
	}
	treeID = node.TreeID
	target := node.NodeID
	if opts.ParentID != "" {
		parent, err := getParent(ctx, b.db, opts.ParentID)
		if err != nil {
			return err
		}
		target = parent.TreeID
	}

	// Bounds read above may be stale by the time the permits are held; the
	// transaction re-reads everything it relies on.
	release, err := b.locks.acquire(ctx, node.TreeID, target)
	if err != nil {
		return err
	}
	defer release()

	var shifted int64
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		shifted, err = moveSubtree(ctx, tx, nodeID, opts)
		return err
	})
	if err != nil {
		return err
	}
	return b.finishTreeWrite(ctx, shifted)
}

// moveSubtree lifts the subtree out under a marker tree id, closes its gap,
// opens a gap of the same width at the target, and drops the subtree in with
// bounds and depths offset. Relative order and internal depths are kept.
func moveSubtree(ctx context.Context, tx *sql.Tx, nodeID string, opts types.MoveOptions) (int64, error) {
	node, err := getNode(ctx, tx, nodeID)
	if err != nil {
		return 0, err
	}

	var parent *types.TreeNode
	if opts.ParentID != "" {
		if parent, err = getParent(ctx, tx, opts.ParentID); err != nil {
			return 0, err
		}
		if parent.NodeID == node.NodeID || node.IsAncestorOf(parent) {
			return 0, fmt.Errorf("%w: %s under %s", types.ErrCyclicMove, node.NodeID, parent.NodeID)
		}
	} else if node.IsRoot() {
		return 0, nil
	}

	width := node.Width()
	marker := moveMarkerPrefix + node.NodeID
	if _, err := tx.ExecContext(ctx,
		"UPDATE tree_nodes SET tree_id = ? WHERE tree_id = ? AND lft >= ? AND rgt <= ?",
		marker, node.TreeID, node.Left, node.Right,
	); err != nil {
		return 0, fmt.Errorf("lifting subtree %s: %w", node.NodeID, err)
	}
	shifted, err := closeGap(ctx, tx, node.TreeID, node.Right, width)
	if err != nil {
		return 0, err
	}

	var (
		treeID     = node.NodeID
		offset     = 1 - node.Left
		depthDelta = -node.Depth
		parentID   any
	)
	if parent != nil {
		// Closing the gap may have moved the parent's bounds.
		if parent, err = getNode(ctx, tx, parent.NodeID); err != nil {
			return 0, err
		}
		ins, err := insertionPoint(ctx, tx, parent, opts.Position)
		if err != nil {
			return 0, err
		}
		n, err := openGap(ctx, tx, parent.TreeID, ins, width)
		if err != nil {
			return 0, err
		}
		shifted += n
		treeID = parent.TreeID
		offset = ins - node.Left
		depthDelta = parent.Depth + 1 - node.Depth
		parentID = parent.NodeID
	}

	r, err := tx.ExecContext(ctx,
		"UPDATE tree_nodes SET tree_id = ?, lft = lft + ?, rgt = rgt + ?, depth = depth + ? WHERE tree_id = ?",
		treeID, offset, offset, depthDelta, marker,
	)
	if err != nil {
		return 0, fmt.Errorf("placing subtree %s: %w", node.NodeID, err)
	}
	placed, _ := r.RowsAffected()
	if _, err := tx.ExecContext(ctx,
		"UPDATE tree_nodes SET parent_id = ? WHERE node_id = ?", parentID, node.NodeID,
	); err != nil {
		return 0, fmt.Errorf("reparenting %s: %w", node.NodeID, err)
	}
	return shifted + placed, nil
}

// DetachAndDelete removes the node with its whole subtree and closes the gap
// they leave. The collections themselves are kept.
func (b *Backend) DetachAndDelete(ctx context.Context, nodeID string) (err error) {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	var treeID string
	done := b.track("detach")
	defer func() { done(nodeID, treeID, err) }()

	node, err := getNode(ctx, b.db, nodeID)
	if err != nil {
		return err
	}
	treeID = node.TreeID
	release, err := b.locks.acquire(ctx, node.TreeID)
	if err != nil {
		return err
	}
	defer release()

	var shifted int64
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		node, err := getNode(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		shifted, err = deleteSubtree(ctx, tx, node)
		return err
	})
	if err != nil {
		return err
	}
	return b.finishTreeWrite(ctx, shifted)
}

func deleteSubtree(ctx context.Context, tx *sql.Tx, node *types.TreeNode) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM tree_nodes WHERE tree_id = ? AND lft >= ? AND rgt <= ?",
		node.TreeID, node.Left, node.Right,
	); err != nil {
		return 0, fmt.Errorf("deleting subtree %s: %w", node.NodeID, err)
	}
	return closeGap(ctx, tx, node.TreeID, node.Right, node.Width())
}

// GetNode returns one tree position.
func (b *Backend) GetNode(ctx context.Context, nodeID string) (*types.TreeNode, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	return getNode(ctx, b.db, nodeID)
}

// AncestorsOf returns every node whose interval strictly contains the
// node's, root first.
func (b *Backend) AncestorsOf(ctx context.Context, nodeID string) ([]*types.TreeNode, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+qualify(nodeColumns, "a")+` FROM tree_nodes n
		 JOIN tree_nodes a ON a.tree_id = n.tree_id AND a.lft < n.lft AND a.rgt > n.rgt
		 WHERE n.node_id = ?
		 ORDER BY a.lft`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying ancestors of %s: %w", nodeID, err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		if _, err := getNode(ctx, b.db, nodeID); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// DescendantsOf returns the nodes strictly inside the node's interval that
// pass filter, in pre-order.
func (b *Backend) DescendantsOf(ctx context.Context, nodeID string, filter types.NodeFilter) ([]*types.TreeNode, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	query := "SELECT " + qualify(nodeColumns, "d") + ` FROM tree_nodes n
		 JOIN tree_nodes d ON d.tree_id = n.tree_id AND d.lft > n.lft AND d.rgt < n.rgt
		 WHERE n.node_id = ?`
	if !filter.ShowInvisible {
		query += " AND d.is_visible = 1"
	}
	if !filter.ShowVirtual {
		query += " AND d.is_virtual = 0"
	}
	query += " ORDER BY d.lft"

	rows, err := b.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying descendants of %s: %w", nodeID, err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		if _, err := getNode(ctx, b.db, nodeID); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// NodesOf returns every position of a collection, oldest first.
func (b *Backend) NodesOf(ctx context.Context, collectionID string) ([]*types.TreeNode, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM tree_nodes WHERE collection_id = ? ORDER BY created_at, node_id",
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("querying nodes of %s: %w", collectionID, err)
	}
	return scanNodes(rows)
}

// CanonicalNode returns the position that represents a collection: the
// oldest visible, non-virtual one, else the oldest of any kind.
func (b *Backend) CanonicalNode(ctx context.Context, collectionID string) (*types.TreeNode, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	row := b.db.QueryRowContext(ctx,
		"SELECT "+nodeColumns+` FROM tree_nodes WHERE collection_id = ?
		 ORDER BY (is_visible = 1 AND is_virtual = 0) DESC, created_at, node_id
		 LIMIT 1`, collectionID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		if err := requireCollection(ctx, b.db, collectionID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("collection %s: %w", collectionID, types.ErrDetachedNode)
	}
	if err != nil {
		return nil, fmt.Errorf("getting canonical node of %s: %w", collectionID, err)
	}
	return n, nil
}

// CheckTree verifies that one tree is a well-formed nested set: bounds are
// exactly 1..2N, intervals nest, the root is the tree's namesake, and depth
// and parent_id agree with the nesting.
func (b *Backend) CheckTree(ctx context.Context, treeID string) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	rows, err := b.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM tree_nodes WHERE tree_id = ? ORDER BY lft", treeID)
	if err != nil {
		return fmt.Errorf("querying tree %s: %w", treeID, err)
	}
	nodes, err := scanNodes(rows)
	if err != nil {
		return err
	}
	return checkNestedSet(treeID, nodes)
}

// TreeIDs lists every tree in the catalog.
func (b *Backend) TreeIDs(ctx context.Context) ([]string, error) {
	leave, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	rows, err := b.db.QueryContext(ctx, "SELECT DISTINCT tree_id FROM tree_nodes ORDER BY tree_id")
	if err != nil {
		return nil, fmt.Errorf("listing trees: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// checkNestedSet validates nodes of one tree sorted by lft.
func checkNestedSet(treeID string, nodes []*types.TreeNode) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: tree %s: %s", types.ErrCorruptTree, treeID, fmt.Sprintf(format, args...))
	}
	if len(nodes) == 0 {
		return fmt.Errorf("tree %s: %w", treeID, types.ErrNotFound)
	}

	root := nodes[0]
	switch {
	case root.NodeID != treeID:
		return corrupt("root is %s", root.NodeID)
	case root.Left != 1 || root.Right != int64(2*len(nodes)):
		return corrupt("root spans [%d, %d] for %d nodes", root.Left, root.Right, len(nodes))
	case root.Depth != 0 || root.ParentID != nil:
		return corrupt("root has depth %d", root.Depth)
	}

	seen := make(map[int64]bool, 2*len(nodes))
	stack := []*types.TreeNode{}
	for _, n := range nodes {
		for _, v := range []int64{n.Left, n.Right} {
			if v < 1 || v > int64(2*len(nodes)) || seen[v] {
				return corrupt("bound %d of %s is out of range or repeated", v, n.NodeID)
			}
			seen[v] = true
		}
		for len(stack) > 0 && stack[len(stack)-1].Right < n.Left {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if n.Right > top.Right {
				return corrupt("%s overlaps %s", n.NodeID, top.NodeID)
			}
			if n.Depth != top.Depth+1 {
				return corrupt("%s has depth %d under depth %d", n.NodeID, n.Depth, top.Depth)
			}
			if n.ParentID == nil || *n.ParentID != top.NodeID {
				return corrupt("%s is recorded under the wrong parent", n.NodeID)
			}
		} else if n != root {
			return corrupt("%s lies outside the root", n.NodeID)
		}
		stack = append(stack, n)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
