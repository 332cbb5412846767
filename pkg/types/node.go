package types

import "time"

// Position is the nested-set placement of a tree node. Within one TreeID the
// intervals [Left, Right] of all nodes form a properly nested bracket
// sequence, and the root's NodeID equals the TreeID.
type Position struct {
	TreeID string `json:"tree_id" yaml:"tree_id"`
	Left   int64  `json:"lft" yaml:"lft"`
	Right  int64  `json:"rgt" yaml:"rgt"`
	Depth  int    `json:"depth" yaml:"depth"`
}

// Width is the number of bound slots the subtree rooted here occupies,
// always twice its node count.
func (p Position) Width() int64 {
	return p.Right - p.Left + 1
}

// Contains reports whether q lies strictly inside p.
func (p Position) Contains(q Position) bool {
	return p.TreeID == q.TreeID && p.Left < q.Left && q.Right < p.Right
}

// IsLeaf reports whether no node lies inside p.
func (p Position) IsLeaf() bool {
	return p.Right == p.Left+1
}

// TreeNode is one position of a collection in the catalog. A collection may
// be hard-linked at several positions; each carries its own display flags.
type TreeNode struct {
	NodeID       string    `json:"node_id" yaml:"node_id"`
	CollectionID string    `json:"collection_id" yaml:"collection_id"`
	ParentID     *string   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Position     `yaml:",inline"`
	Visible      bool      `json:"visible" yaml:"visible"`
	Virtual      bool      `json:"virtual" yaml:"virtual"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// IsRoot reports whether the node is the root of its tree.
func (n *TreeNode) IsRoot() bool {
	return n.ParentID == nil
}

// IsAncestorOf reports whether n strictly contains other.
func (n *TreeNode) IsAncestorOf(other *TreeNode) bool {
	return n.Position.Contains(other.Position)
}
