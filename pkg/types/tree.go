package types

// NodeFilter narrows DescendantsOf. The zero value hides invisible and
// virtual nodes.
type NodeFilter struct {
	ShowInvisible bool
	ShowVirtual   bool
}

// Match reports whether n passes the filter on its own flags.
func (f NodeFilter) Match(n *TreeNode) bool {
	return (f.ShowVirtual || !n.Virtual) && (f.ShowInvisible || n.Visible)
}

// FilterPolicy decides what happens to a node that passes the filter while
// one of its ancestors inside the drilldown does not.
type FilterPolicy int

const (
	// PolicyHide drops the node together with its excluded ancestor.
	PolicyHide FilterPolicy = iota
	// PolicyReparent hangs the node under its nearest surviving ancestor.
	PolicyReparent
)

// AttachOptions places a collection in the catalog.
type AttachOptions struct {
	// ParentID is the parent tree node; empty starts a new tree.
	ParentID string
	// TreeID, when set, must match the parent's tree.
	TreeID string
	// Position inserts before the Position-th existing child (0-based).
	// Nil or out of range appends.
	Position *int
	// Visible defaults to true, Virtual to false.
	Visible *bool
	Virtual *bool
}

// MoveOptions relocates a subtree. An empty ParentID makes the subtree a tree
// of its own.
type MoveOptions struct {
	ParentID string
	Position *int
}

// DrilldownOptions configure Drilldown.
type DrilldownOptions struct {
	// NodeID starts from a specific tree position of the collection instead
	// of its canonical one.
	NodeID        string
	ShowInvisible bool
	ShowVirtual   bool
	Policy        FilterPolicy
}

// Filter returns the node filter implied by the options.
func (o DrilldownOptions) Filter() NodeFilter {
	return NodeFilter{ShowInvisible: o.ShowInvisible, ShowVirtual: o.ShowVirtual}
}

// PathOptions configure PathToRoot.
type PathOptions struct {
	NodeID        string
	FollowVirtual bool
}

// Tree is one level of a drilldown. Children is never nil.
type Tree struct {
	Node       *TreeNode   `json:"node,omitempty" yaml:"node,omitempty"`
	Collection *Collection `json:"collection,omitempty" yaml:"collection,omitempty"`
	Children   []*Tree     `json:"children" yaml:"children"`
}

// Walk visits t and its descendants in pre-order. Returning false from fn
// skips the children of that entry.
func (t *Tree) Walk(fn func(t *Tree, level int) bool) {
	t.walk(fn, 0)
}

func (t *Tree) walk(fn func(t *Tree, level int) bool, level int) {
	if !fn(t, level) {
		return
	}
	for _, c := range t.Children {
		c.walk(fn, level+1)
	}
}

// Size returns the number of entries below t.
func (t *Tree) Size() int {
	n := 0
	t.Walk(func(*Tree, int) bool { n++; return true })
	return n - 1
}
